package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/mailio"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

// ReplyTaskConfig holds everything one reply-spawn iteration (spec.md
// §4.F) needs.
type ReplyTaskConfig struct {
	Pool     executor.Pool
	Incoming queue.Queue[*mail.Message]
	Outgoing queue.Queue[*mail.Message]
	Resolver *mail.Resolver

	MaxRetries     int
	RetryBackoff   time.Duration
	DequeueTimeout time.Duration
	EnqueueTimeout time.Duration

	Logger *slog.Logger
}

// NewReplyTask builds the reply-spawn task. One iteration dequeues a
// single incoming message, resolves which bot it's addressed to,
// requests a completion (making up to MaxRetries attempts), and
// enqueues the composed reply for delivery. A message with no
// matching bot, or one whose completion never succeeds, is dropped —
// not requeued — since upstream idempotence already comes from the
// message being marked read (or deleted) on the mail server.
func NewReplyTask(cfg ReplyTaskConfig) *BlockingTask {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	step := func(ctx context.Context) task.StepResult {
		msg, ok, err := cfg.Incoming.Get(ctx, cfg.DequeueTimeout)
		if err != nil {
			return task.RaisedResult(fmt.Errorf("dequeue incoming: %w", err))
		}
		if !ok {
			return task.ContinueResult()
		}

		bot, ok := cfg.Resolver.Resolve(msg)
		if !ok {
			logger.Info("no bot matches recipient, dropping message", "to", addrStrings(msg.To))
			return task.ContinueResult()
		}

		input := fmt.Sprintf("From: %s\nSubject: %s\n\n%s",
			msg.From.String(), msg.Subject, truncatedInput(msg.Body, bot.MaxInputLength))

		resp, err := completeWithRetry(ctx, cfg.Pool, bot, input, maxRetries, cfg.RetryBackoff, logger)
		if err != nil {
			logger.Error("chat completion exhausted retries, dropping message",
				"bot", bot.Name, "from", msg.From.Bare(), "error", err)
			return task.ContinueResult()
		}

		fromAddr := replyFromAddress(bot, msg)
		reply := mail.NewReply(msg, fromAddr, resp.Text)
		if err := mailio.Compose(reply, msg, resp.Text); err != nil {
			return task.RaisedResult(fmt.Errorf("compose reply: %w", err))
		}

		if err := cfg.Outgoing.Put(ctx, reply, cfg.EnqueueTimeout); err != nil {
			return task.RaisedResult(fmt.Errorf("enqueue outgoing: %w", err))
		}

		return task.ContinueResult()
	}

	return NewBlockingTask(step, func(err error) error {
		logger.Error("reply-spawn iteration failed, retrying next interval", "error", err)
		return nil
	})
}

func completeWithRetry(ctx context.Context, pool executor.Pool, bot mail.Bot, input string, maxRetries int, backoff time.Duration, logger *slog.Logger) (llmResult, error) {
	model, _ := bot.ChatModelParams["model"].(string)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := submitAndWait[llmResult](ctx, pool, executor.Job{
			Op: OpLLMComplete,
			Payload: llmPayload{
				Model:        model,
				SystemPrompt: bot.SystemPrompt,
				Input:        input,
				Params:       bot.ChatModelParams,
			},
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warn("chat completion attempt failed", "bot", bot.Name, "attempt", attempt, "error", err)

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return llmResult{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return llmResult{}, lastErr
}

// replyFromAddress picks the reply's From address. A literal-address
// bot uses its own configured address; a regex-matched bot has no
// single address of its own, so the reply is sent from whatever
// concrete recipient address the regex actually matched (msg.To[0]) —
// spec.md §3's "from = bot address" rule implicitly assumes a literal
// address and doesn't cover the wildcard case.
func replyFromAddress(bot mail.Bot, msg *mail.Message) mail.Address {
	if bot.Address != "" {
		return mail.ParseAddress(bot.Address)
	}
	return msg.To[0]
}

func truncatedInput(body string, maxLen int) string {
	if maxLen <= 0 || len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "\n\n[truncated]"
}

func addrStrings(addrs []mail.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Bare()
	}
	return out
}
