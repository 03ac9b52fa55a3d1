// Package filter implements the composable security rule chain
// applied to every fetched message before it is queued for reply
// (spec.md §4.D): sender allow/deny matching, an optional secret-key
// gate that mutates the body, and windowed rate limits.
package filter

import (
	"context"
	"log/slog"

	"github.com/ashgrove/autoreply/internal/mail"
)

// SecurityChannel is the dedicated log channel blocked messages are
// reported on (spec.md §4.D), realized as an slog attribute rather
// than a separate sink so it composes with whatever handler the
// application wires in.
const SecurityChannel = "security"

// Rule evaluates one message. Check may mutate msg (the secret-key
// rule strips its token from the body) and returns either
// (true, "", nil) for ALLOW or (false, reason, nil) for BLOCK. A
// non-nil error is a rule failure, not a block, and terminates the
// whole filter apply per spec.md §4.D.
type Rule interface {
	Check(ctx context.Context, msg *mail.Message) (allow bool, reason string, err error)

	// Name identifies the rule for logging.
	Name() string
}

// Chain is an ordered sequence of rules. Apply short-circuits on the
// first BLOCK or error.
type Chain struct {
	rules  []Rule
	logger *slog.Logger
}

// NewChain builds a chain from rules in evaluation order.
func NewChain(logger *slog.Logger, rules ...Rule) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{rules: rules, logger: logger}
}

// Apply runs every rule against msg in order. It returns true if msg
// survived every rule (and may have been mutated in place by a rule
// like SecretKey), false if some rule blocked it, and a non-nil error
// if a rule itself failed.
func (c *Chain) Apply(ctx context.Context, msg *mail.Message) (bool, error) {
	for _, r := range c.rules {
		allow, reason, err := r.Check(ctx, msg)
		if err != nil {
			return false, err
		}
		if !allow {
			c.logger.Warn("message blocked",
				"channel", SecurityChannel,
				"rule", r.Name(),
				"reason", reason,
				"from", msg.From.String(),
				"subject", msg.Subject,
			)
			return false, nil
		}
	}
	return true, nil
}

// Rules exposes the chain's rules in evaluation order, for tests and
// for Open-Question-decided reordering at assembly time.
func (c *Chain) Rules() []Rule {
	return append([]Rule{}, c.rules...)
}
