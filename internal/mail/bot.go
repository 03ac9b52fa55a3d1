package mail

import (
	"fmt"
	"regexp"
	"strings"
)

// Bot describes an addressee identity paired with a chat-model
// capability and prompt (spec.md §3 "Bot specification").
type Bot struct {
	Name string

	// Exactly one of Address / AddressRegex must be set.
	Address      string
	AddressRegex *regexp.Regexp

	MaxInputLength int
	SystemPrompt   string

	// ChatModelParams is opaque configuration forwarded verbatim to the
	// chat-model capability (model name, temperature, provider-specific
	// knobs). The core never interprets it.
	ChatModelParams map[string]any
}

// Validate enforces the exactly-one-of(address, address_regex)
// invariant and that MaxInputLength is positive. This is a
// configuration error, caught at load time per spec.md §3.
func (b Bot) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("bot: name is required")
	}
	hasAddr := b.Address != ""
	hasRegex := b.AddressRegex != nil
	if hasAddr == hasRegex {
		return fmt.Errorf("bot %q: exactly one of address or address_regex is required", b.Name)
	}
	if b.MaxInputLength <= 0 {
		return fmt.Errorf("bot %q: max_input_length must be positive", b.Name)
	}
	return nil
}

// Matches reports whether addr (compared by its bare mailbox@domain
// form) is addressed to this bot: an exact match against Address, or a regex
// match against the mailbox+domain for AddressRegex.
func (b Bot) Matches(addr Address) bool {
	bare := addr.Bare()
	if b.Address != "" {
		return strings.EqualFold(bare, b.Address)
	}
	if b.AddressRegex != nil {
		return b.AddressRegex.MatchString(bare)
	}
	return false
}

// Resolver matches an incoming message's primary recipient against a
// set of configured bots (spec.md §4.F step 2).
type Resolver struct {
	bots []Bot
}

// NewResolver builds a resolver from a validated bot list.
func NewResolver(bots []Bot) *Resolver {
	return &Resolver{bots: append([]Bot{}, bots...)}
}

// Resolve matches the message's primary (first) To address against
// each configured bot in order. ok is false if none match or the
// message has no recipients.
func (r *Resolver) Resolve(msg *Message) (bot Bot, ok bool) {
	if len(msg.To) == 0 {
		return Bot{}, false
	}
	primary := msg.To[0]
	for _, b := range r.bots {
		if b.Matches(primary) {
			return b, true
		}
	}
	return Bot{}, false
}
