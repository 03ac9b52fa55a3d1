package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/filter"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

// FetchTaskConfig holds everything one mail-fetch iteration (spec.md
// §4.E) needs.
type FetchTaskConfig struct {
	Pool     executor.Pool
	Incoming queue.Queue[*mail.Message]
	Chain    *filter.Chain
	Bots     []mail.Bot

	MaxAge   time.Duration
	FetchMax int
	// OnlyUnseen and Delete encode the configured fetch mode: mark_read
	// mode searches unseen-only and marks \Seen afterward; delete mode
	// searches the whole age window (nothing is marked read, so a
	// \Seen restriction would never let survivorship work) and deletes
	// afterward instead.
	OnlyUnseen     bool
	Delete         bool
	EnqueueTimeout time.Duration

	Logger *slog.Logger
}

// NewFetchTask builds the mail-fetch task. One iteration searches and
// fetches new INBOX messages through the executor pool, drops
// self-sent messages, runs the rest through the security filter
// chain, enqueues the allowed ones, and finally marks-seen or deletes
// every fetched message — regardless of filter outcome — so nothing
// reappears on the next iteration.
func NewFetchTask(cfg FetchTaskConfig) *BlockingTask {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	step := func(ctx context.Context) task.StepResult {
		result, err := submitAndWait[fetchResult](ctx, cfg.Pool, executor.Job{
			Op: OpMailFetch,
			Payload: fetchPayload{
				MaxAgeSeconds: int64(cfg.MaxAge.Seconds()),
				Max:           cfg.FetchMax,
				OnlyUnseen:    cfg.OnlyUnseen,
			},
		})
		if err != nil {
			return task.RaisedResult(fmt.Errorf("mail fetch: %w", err))
		}

		var processedUIDs []uint32
		for _, msg := range result.Messages {
			if msg.UID == 0 {
				continue
			}
			processedUIDs = append(processedUIDs, msg.UID)

			if fromMatchesAnyBot(msg.From, cfg.Bots) {
				logger.Debug("dropping self-sent message", "from", msg.From.Bare(), "uid", msg.UID)
				continue
			}

			allow, ferr := cfg.Chain.Apply(ctx, msg)
			if ferr != nil {
				return task.RaisedResult(fmt.Errorf("filter chain: %w", ferr))
			}
			if !allow {
				continue
			}

			if err := cfg.Incoming.Put(ctx, msg, cfg.EnqueueTimeout); err != nil {
				return task.RaisedResult(fmt.Errorf("enqueue incoming: %w", err))
			}
		}

		if len(processedUIDs) == 0 {
			return task.ContinueResult()
		}

		op := OpMailMarkSeen
		if cfg.Delete {
			op = OpMailDelete
		}
		if _, err := submitAndWait[any](ctx, cfg.Pool, executor.Job{
			Op:      op,
			Payload: uidsPayload{UIDs: processedUIDs},
		}); err != nil {
			return task.RaisedResult(fmt.Errorf("mark/delete processed messages: %w", err))
		}

		return task.ContinueResult()
	}

	return NewBlockingTask(step, func(err error) error {
		logger.Error("mail-fetch iteration failed, retrying next interval", "error", err)
		return nil
	})
}

// fromMatchesAnyBot reports whether from is one of the configured
// bots' own addresses, the self-sent filter of SPEC_FULL.md §12.2.
func fromMatchesAnyBot(from mail.Address, bots []mail.Bot) bool {
	bare := from.Bare()
	for _, b := range bots {
		if b.Address != "" && strings.EqualFold(bare, b.Address) {
			return true
		}
	}
	return false
}
