package pipeline

import (
	"context"
	encjson "encoding/json"
	"log/slog"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/filter"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

// fakeFetcher is a hand-written stand-in for mailio.Fetcher's
// capabilities, registered directly as an OpMailFetch/OpMailMarkSeen/
// OpMailDelete handler so the task is exercised through the same
// executor.Registry path the real pipeline uses.
type fakeFetcher struct {
	messages []*mail.Message
	seen     []uint32
	deleted  []uint32
}

func newFakeRegistry(f *fakeFetcher) *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register(OpMailFetch, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		return fetchResult{Messages: f.messages}, nil
	})
	reg.Register(OpMailMarkSeen, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p uidsPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		f.seen = append(f.seen, p.UIDs...)
		return nil, nil
	})
	reg.Register(OpMailDelete, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p uidsPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		f.deleted = append(f.deleted, p.UIDs...)
		return nil, nil
	})
	return reg
}

func TestFetchTask_AllowedMessageEnqueuedAndMarkedSeen(t *testing.T) {
	bot := mail.Bot{Name: "helper", Address: "helper@example.com", MaxInputLength: 1000}
	f := &fakeFetcher{
		messages: []*mail.Message{
			{UID: 1, From: mail.ParseAddress("alice@example.com"), To: []mail.Address{mail.ParseAddress("helper@example.com")}, Subject: "hi"},
		},
	}
	pool := executor.NewThreadPool(1, newFakeRegistry(f))
	incoming := queue.NewMemoryQueue[*mail.Message](10)
	chain := filter.NewChain(slog.Default())

	taskImpl := NewFetchTask(FetchTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Chain:          chain,
		Bots:           []mail.Bot{bot},
		MaxAge:         time.Hour,
		FetchMax:       10,
		OnlyUnseen:     true,
		EnqueueTimeout: time.Second,
	})

	result := taskImpl.Step(context.Background())
	if result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v, want Continue", result.Outcome, result.Err)
	}

	msg, ok, err := incoming.Get(context.Background(), 0)
	if err != nil || !ok {
		t.Fatalf("expected message in incoming queue, ok=%v err=%v", ok, err)
	}
	if msg.UID != 1 {
		t.Errorf("dequeued UID = %d, want 1", msg.UID)
	}
	if len(f.seen) != 1 || f.seen[0] != 1 {
		t.Errorf("seen = %v, want [1]", f.seen)
	}
}

func TestFetchTask_SelfSentMessageDropped(t *testing.T) {
	bot := mail.Bot{Name: "helper", Address: "helper@example.com", MaxInputLength: 1000}
	f := &fakeFetcher{
		messages: []*mail.Message{
			{UID: 7, From: mail.ParseAddress("helper@example.com"), To: []mail.Address{mail.ParseAddress("someone@example.com")}},
		},
	}
	pool := executor.NewThreadPool(1, newFakeRegistry(f))
	incoming := queue.NewMemoryQueue[*mail.Message](10)

	taskImpl := NewFetchTask(FetchTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Chain:          filter.NewChain(slog.Default()),
		Bots:           []mail.Bot{bot},
		MaxAge:         time.Hour,
		FetchMax:       10,
		EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}

	_, ok, _ := incoming.Get(context.Background(), 10*time.Millisecond)
	if ok {
		t.Fatal("self-sent message should not have been enqueued")
	}
	if len(f.seen) != 1 || f.seen[0] != 7 {
		t.Errorf("seen = %v, want [7]: a self-sent message is still marked processed", f.seen)
	}
}

func TestFetchTask_FilteredMessageDroppedButMarked(t *testing.T) {
	f := &fakeFetcher{
		messages: []*mail.Message{
			{UID: 3, From: mail.ParseAddress("blocked@example.com"), To: []mail.Address{mail.ParseAddress("helper@example.com")}},
		},
	}
	pool := executor.NewThreadPool(1, newFakeRegistry(f))
	incoming := queue.NewMemoryQueue[*mail.Message](10)
	chain := filter.NewChain(slog.Default(), filter.NewFilterSender(filter.Denylist, []string{"blocked@example.com"}))

	taskImpl := NewFetchTask(FetchTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Chain:          chain,
		Delete:         true,
		MaxAge:         time.Hour,
		FetchMax:       10,
		EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}

	_, ok, _ := incoming.Get(context.Background(), 10*time.Millisecond)
	if ok {
		t.Fatal("blocked message should not have been enqueued")
	}
	if len(f.deleted) != 1 || f.deleted[0] != 3 {
		t.Errorf("deleted = %v, want [3]: delete mode processes messages regardless of filter outcome", f.deleted)
	}
}

func TestFetchTask_NoMessagesIsContinueWithNoop(t *testing.T) {
	f := &fakeFetcher{}
	pool := executor.NewThreadPool(1, newFakeRegistry(f))
	incoming := queue.NewMemoryQueue[*mail.Message](10)

	taskImpl := NewFetchTask(FetchTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Chain:          filter.NewChain(slog.Default()),
		MaxAge:         time.Hour,
		FetchMax:       10,
		EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if len(f.seen) != 0 || len(f.deleted) != 0 {
		t.Errorf("expected no mark/delete call when nothing was fetched, got seen=%v deleted=%v", f.seen, f.deleted)
	}
}

