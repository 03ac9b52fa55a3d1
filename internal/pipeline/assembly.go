// Package pipeline wires the mail-fetch, reply-spawn, and mail-send
// tasks (spec.md §4.E/F/G) to the executor, queue, filter, and mail
// capabilities, and assembles them into three running task.Runners
// per spec.md §4.H.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ashgrove/autoreply/internal/config"
	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/history"
	"github.com/ashgrove/autoreply/internal/llm"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/mailio"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

// Application is the assembled, running set of the three task
// runners plus the resources they own, ready to be awaited and torn
// down together.
type Application struct {
	FetchRunner *task.Runner
	ReplyRunner *task.Runner
	SendRunner  *task.Runner

	pool     executor.Pool
	incoming queue.Queue[*mail.Message]
	outgoing queue.Queue[*mail.Message]
	fetcher  *mailio.Fetcher
	history  *history.Store
}

// BuildRegistry constructs the executor.Registry shared by the parent
// process and any re-exec'd process-pool worker. Both call sites
// (normal startup and the WorkerEnvVar branch) must build it the same
// way, per executor.RunWorkerMain's contract, which is why this
// stands alone rather than living inside Assemble.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) (*executor.Registry, *mailio.Fetcher, *mailio.Sender, error) {
	fetcher := mailio.NewFetcher(cfg.Fetch.Account)
	sender := mailio.NewSender(cfg.Send.Account)

	chat, err := buildChatClient(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	reg := executor.NewRegistry()
	RegisterHandlers(reg, fetcher, sender, chat)
	return reg, fetcher, sender, nil
}

func buildChatClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	ollamaClient := llm.NewOllamaClient(cfg.Providers.Ollama.BaseURL, logger)

	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Providers.Anthropic.Configured() {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Providers.Anthropic.APIKey, logger))
	}

	for _, b := range cfg.Bots {
		model, _ := b.ChatModelParams["model"].(string)
		if model == "" {
			continue
		}
		provider := b.Provider
		if provider == "" {
			provider = "ollama"
		}
		multi.AddModel(model, provider)
	}

	return multi, nil
}

// Assemble builds every component spec.md §4.H names — executor pool,
// queues, filter chain, bot resolver, IMAP/SMTP capabilities, chat
// client — and starts the three task runners. execPath/execArgs are
// only used when cfg.Executor.Type is "process": they're what
// ProcessPool re-execs to spawn worker subprocesses, normally
// os.Args[0] and os.Args[1:].
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger, execPath string, execArgs []string) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bots := make([]mail.Bot, 0, len(cfg.Bots))
	for _, bc := range cfg.Bots {
		b, err := bc.ToMailBot()
		if err != nil {
			return nil, fmt.Errorf("bot %q: %w", bc.Name, err)
		}
		bots = append(bots, b)
	}

	registry, fetcher, _, err := BuildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := buildPool(ctx, cfg.Executor, registry, execPath, execArgs)
	if err != nil {
		return nil, fmt.Errorf("build executor pool: %w", err)
	}

	incoming := buildQueue(cfg.IncomingQueue)
	outgoing := buildQueue(cfg.OutgoingQueue)

	chain, err := cfg.Filter.Build()
	if err != nil {
		pool.Close(ctx)
		return nil, fmt.Errorf("build filter chain: %w", err)
	}

	resolver := mail.NewResolver(bots)

	var historyRecorder task.HistoryRecorder
	var historyStore *history.Store
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			pool.Close(ctx)
			return nil, fmt.Errorf("build history store: %w", err)
		}
		historyRecorder = store
		historyStore = store
	}

	fetchTask := NewFetchTask(FetchTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Chain:          chain,
		Bots:           bots,
		MaxAge:         daysToDuration(cfg.Fetch.MaxAgeDays),
		FetchMax:       cfg.Fetch.FetchMax,
		OnlyUnseen:     cfg.Fetch.Mode == config.FetchModeMarkRead,
		Delete:         cfg.Fetch.Mode == config.FetchModeDelete,
		EnqueueTimeout: cfg.Fetch.EnqueueTimeout,
		Logger:         logger.With("task", "mail_fetch"),
	})

	replyTask := NewReplyTask(ReplyTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Outgoing:       outgoing,
		Resolver:       resolver,
		MaxRetries:     cfg.Reply.MaxRetries,
		RetryBackoff:   cfg.Reply.RetryBackoff,
		DequeueTimeout: cfg.Reply.DequeueTimeout,
		EnqueueTimeout: cfg.Reply.EnqueueTimeout,
		Logger:         logger.With("task", "reply_spawn"),
	})

	sendTask := NewSendTask(SendTaskConfig{
		Pool:           pool,
		Outgoing:       outgoing,
		DequeueTimeout: cfg.Send.DequeueTimeout,
		Logger:         logger.With("task", "mail_send"),
	})

	app := &Application{
		pool:     pool,
		incoming: incoming,
		outgoing: outgoing,
		fetcher:  fetcher,
		history:  historyStore,
	}

	app.FetchRunner = task.New("mail_fetch", fetchTask, task.WithLogger(logger), withHistoryIfSet(historyRecorder))
	app.ReplyRunner = task.New("reply_spawn", replyTask, task.WithLogger(logger), withHistoryIfSet(historyRecorder))
	app.SendRunner = task.New("mail_send", sendTask, task.WithLogger(logger), withHistoryIfSet(historyRecorder))

	if err := app.FetchRunner.Start(ctx, cfg.Fetch.Interval); err != nil {
		return nil, fmt.Errorf("start mail_fetch runner: %w", err)
	}
	if err := app.ReplyRunner.Start(ctx, cfg.Reply.Interval); err != nil {
		return nil, fmt.Errorf("start reply_spawn runner: %w", err)
	}
	if err := app.SendRunner.Start(ctx, cfg.Send.Interval); err != nil {
		return nil, fmt.Errorf("start mail_send runner: %w", err)
	}

	return app, nil
}

// withHistoryIfSet returns a no-op option when h is nil, so callers
// don't need to branch on whether history is configured.
func withHistoryIfSet(h task.HistoryRecorder) task.Option {
	if h == nil {
		return func(*task.Runner) {}
	}
	return task.WithHistory(h)
}

func buildPool(ctx context.Context, cfg config.ExecutorConfig, registry *executor.Registry, execPath string, execArgs []string) (executor.Pool, error) {
	switch cfg.Type {
	case config.ExecutorProcess:
		if execPath == "" {
			execPath = os.Args[0]
		}
		return executor.NewProcessPool(ctx, execPath, execArgs, cfg.Count)
	default:
		return executor.NewThreadPool(cfg.Count, registry), nil
	}
}

func buildQueue(cfg config.QueueConfig) queue.Queue[*mail.Message] {
	if cfg.Type == config.QueueRedis {
		return queue.NewRedisQueue[*mail.Message](cfg.Redis, cfg.Capacity)
	}
	return queue.NewMemoryQueue[*mail.Message](cfg.Capacity)
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// Wait blocks until all three runners reach a terminal state and
// returns the first non-nil error among them.
func (a *Application) Wait() error {
	type res struct {
		name string
		err  error
	}
	results := make(chan res, 3)
	runners := []struct {
		name   string
		runner *task.Runner
	}{
		{"mail_fetch", a.FetchRunner},
		{"reply_spawn", a.ReplyRunner},
		{"mail_send", a.SendRunner},
	}
	for _, entry := range runners {
		entry := entry
		go func() {
			_, err := entry.runner.Result()
			results <- res{name: entry.name, err: err}
		}()
	}

	var first error
	for i := 0; i < 3; i++ {
		r := <-results
		if r.err != nil && first == nil {
			first = fmt.Errorf("%s: %w", r.name, r.err)
		}
	}
	return first
}

// Stop requests graceful termination of all three runners.
func (a *Application) Stop() {
	a.FetchRunner.Stop()
	a.ReplyRunner.Stop()
	a.SendRunner.Stop()
}

// Cancel requests immediate termination of all three runners.
func (a *Application) Cancel() {
	a.FetchRunner.Cancel()
	a.ReplyRunner.Cancel()
	a.SendRunner.Cancel()
}

// Close releases every resource Assemble constructed. Call after Wait
// returns.
func (a *Application) Close(ctx context.Context) error {
	var firstErr error
	if err := a.pool.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.incoming.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.outgoing.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.fetcher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
