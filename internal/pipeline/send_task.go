package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

// SendTaskConfig holds everything one mail-send iteration (spec.md
// §4.G) needs.
type SendTaskConfig struct {
	Pool     executor.Pool
	Outgoing queue.Queue[*mail.Message]

	DequeueTimeout time.Duration

	Logger *slog.Logger
}

// NewSendTask builds the mail-send task. One iteration dequeues a
// single outgoing message and delivers it through the executor pool.
// A delivery failure is raised from the step, then logged and
// swallowed by the task's exception handler: the runner's default
// re-scheduling after Interval is the retry discipline spec.md §4.G
// specifies, not an explicit requeue.
func NewSendTask(cfg SendTaskConfig) *BlockingTask {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	step := func(ctx context.Context) task.StepResult {
		msg, ok, err := cfg.Outgoing.Get(ctx, cfg.DequeueTimeout)
		if err != nil {
			return task.RaisedResult(fmt.Errorf("dequeue outgoing: %w", err))
		}
		if !ok {
			return task.ContinueResult()
		}

		if _, err := submitAndWait[any](ctx, cfg.Pool, executor.Job{
			Op:      OpMailSend,
			Payload: sendPayload{Message: msg},
		}); err != nil {
			return task.RaisedResult(fmt.Errorf("send message to %v: %w", addrStrings(msg.To), err))
		}

		logger.Info("sent reply", "to", addrStrings(msg.To), "subject", msg.Subject)
		return task.ContinueResult()
	}

	return NewBlockingTask(step, func(err error) error {
		logger.Error("mail-send iteration failed, retrying next interval", "error", err)
		return nil
	})
}
