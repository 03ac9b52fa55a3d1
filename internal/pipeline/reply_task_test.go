package pipeline

import (
	"context"
	encjson "encoding/json"
	"errors"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/queue"
	"github.com/ashgrove/autoreply/internal/task"
)

func newCompletingRegistry(reply string, failCount int) (*executor.Registry, *int) {
	calls := 0
	reg := executor.NewRegistry()
	reg.Register(OpLLMComplete, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		calls++
		if calls <= failCount {
			return nil, errors.New("provider unavailable")
		}
		var p llmPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return llmResult{Text: reply}, nil
	})
	return reg, &calls
}

func TestReplyTask_ResolvesAndEnqueuesReply(t *testing.T) {
	bot := mail.Bot{Name: "helper", Address: "helper@example.com", MaxInputLength: 1000, SystemPrompt: "be nice"}
	reg, _ := newCompletingRegistry("hello there", 0)
	pool := executor.NewThreadPool(1, reg)

	incoming := queue.NewMemoryQueue[*mail.Message](10)
	outgoing := queue.NewMemoryQueue[*mail.Message](10)
	resolver := mail.NewResolver([]mail.Bot{bot})

	msg := &mail.Message{
		From:    mail.ParseAddress("alice@example.com"),
		To:      []mail.Address{mail.ParseAddress("helper@example.com")},
		Subject: "question",
		Body:    "how are you",
	}
	if err := incoming.Put(context.Background(), msg, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	taskImpl := NewReplyTask(ReplyTaskConfig{
		Pool:           pool,
		Incoming:       incoming,
		Outgoing:       outgoing,
		Resolver:       resolver,
		MaxRetries:     3,
		RetryBackoff:   time.Millisecond,
		DequeueTimeout: time.Second,
		EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}

	reply, ok, err := outgoing.Get(context.Background(), 0)
	if err != nil || !ok {
		t.Fatalf("expected a reply on the outgoing queue, ok=%v err=%v", ok, err)
	}
	if reply.To[0].Bare() != "alice@example.com" {
		t.Errorf("reply To = %v, want alice@example.com", reply.To)
	}
	if reply.From.Bare() != "helper@example.com" {
		t.Errorf("reply From = %v, want helper@example.com", reply.From)
	}
	if reply.Subject != "Re: question" {
		t.Errorf("reply Subject = %q, want %q", reply.Subject, "Re: question")
	}
}

func TestReplyTask_NoMatchingBotDropsMessage(t *testing.T) {
	reg, _ := newCompletingRegistry("unused", 0)
	pool := executor.NewThreadPool(1, reg)
	incoming := queue.NewMemoryQueue[*mail.Message](10)
	outgoing := queue.NewMemoryQueue[*mail.Message](10)
	resolver := mail.NewResolver(nil)

	msg := &mail.Message{To: []mail.Address{mail.ParseAddress("nobody@example.com")}}
	if err := incoming.Put(context.Background(), msg, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	taskImpl := NewReplyTask(ReplyTaskConfig{
		Pool: pool, Incoming: incoming, Outgoing: outgoing, Resolver: resolver,
		DequeueTimeout: time.Second, EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if _, ok, _ := outgoing.Get(context.Background(), 10*time.Millisecond); ok {
		t.Fatal("no outgoing message expected when no bot matches")
	}
}

func TestReplyTask_RetriesThenSucceeds(t *testing.T) {
	bot := mail.Bot{Name: "helper", Address: "helper@example.com", MaxInputLength: 1000}
	reg, calls := newCompletingRegistry("eventually works", 2)
	pool := executor.NewThreadPool(1, reg)
	incoming := queue.NewMemoryQueue[*mail.Message](10)
	outgoing := queue.NewMemoryQueue[*mail.Message](10)
	resolver := mail.NewResolver([]mail.Bot{bot})

	msg := &mail.Message{From: mail.ParseAddress("bob@example.com"), To: []mail.Address{mail.ParseAddress("helper@example.com")}, Subject: "hi"}
	if err := incoming.Put(context.Background(), msg, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	taskImpl := NewReplyTask(ReplyTaskConfig{
		Pool: pool, Incoming: incoming, Outgoing: outgoing, Resolver: resolver,
		MaxRetries: 3, RetryBackoff: time.Millisecond,
		DequeueTimeout: time.Second, EnqueueTimeout: time.Second,
	})

	if result := taskImpl.Step(context.Background()); result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if *calls != 3 {
		t.Errorf("calls = %d, want 3 (two failures then a success)", *calls)
	}
	if _, ok, _ := outgoing.Get(context.Background(), 0); !ok {
		t.Fatal("expected a reply after the retried completion succeeded")
	}
}

func TestReplyTask_ExhaustedRetriesDropsMessage(t *testing.T) {
	bot := mail.Bot{Name: "helper", Address: "helper@example.com", MaxInputLength: 1000}
	reg, calls := newCompletingRegistry("unused", 99)
	pool := executor.NewThreadPool(1, reg)
	incoming := queue.NewMemoryQueue[*mail.Message](10)
	outgoing := queue.NewMemoryQueue[*mail.Message](10)
	resolver := mail.NewResolver([]mail.Bot{bot})

	msg := &mail.Message{From: mail.ParseAddress("bob@example.com"), To: []mail.Address{mail.ParseAddress("helper@example.com")}}
	if err := incoming.Put(context.Background(), msg, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	taskImpl := NewReplyTask(ReplyTaskConfig{
		Pool: pool, Incoming: incoming, Outgoing: outgoing, Resolver: resolver,
		MaxRetries: 2, RetryBackoff: time.Millisecond,
		DequeueTimeout: time.Second, EnqueueTimeout: time.Second,
	})

	result := taskImpl.Step(context.Background())
	if result.Outcome != task.Continue {
		t.Fatalf("Step outcome = %v, err = %v, want Continue (drop, not raise)", result.Outcome, result.Err)
	}
	if *calls != 2 {
		t.Errorf("calls = %d, want 2 (MaxRetries)", *calls)
	}
	if _, ok, _ := outgoing.Get(context.Background(), 10*time.Millisecond); ok {
		t.Fatal("no reply expected once retries are exhausted")
	}
}
