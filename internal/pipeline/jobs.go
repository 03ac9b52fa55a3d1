package pipeline

import (
	"context"
	encjson "encoding/json"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ashgrove/autoreply/internal/executor"
	"github.com/ashgrove/autoreply/internal/llm"
	"github.com/ashgrove/autoreply/internal/mail"
	"github.com/ashgrove/autoreply/internal/mailio"
)

// Operation names dispatched through an executor.Registry. These must
// match exactly between the parent process and any re-exec'd
// process-pool worker, since the wire protocol dispatches by name
// alone (executor.RunWorkerMain).
const (
	OpMailFetch    = "mail.fetch"
	OpMailMarkSeen = "mail.mark_seen"
	OpMailDelete   = "mail.delete"
	OpMailSend     = "mail.send"
	OpLLMComplete  = "llm.complete"
)

type fetchPayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
	Max           int   `json:"max"`
	OnlyUnseen    bool  `json:"only_unseen"`
}

type fetchResult struct {
	Messages []*mail.Message `json:"messages"`
}

type uidsPayload struct {
	UIDs []uint32 `json:"uids"`
}

type sendPayload struct {
	Message *mail.Message `json:"message"`
}

type llmPayload struct {
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	Input        string         `json:"input"`
	Params       map[string]any `json:"params"`
}

type llmResult struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// RegisterHandlers wires every blocking operation the pipeline tasks
// submit through an executor.Pool. It must be called identically by
// the parent process and by any re-exec'd process-pool worker before
// executor.RunWorkerMain starts serving requests — BuildRegistry calls
// it, and main.go reaches BuildRegistry from both places (directly in
// the worker branch, through Assemble otherwise).
func RegisterHandlers(reg *executor.Registry, fetcher *mailio.Fetcher, sender *mailio.Sender, chat llm.Client) {
	reg.Register(OpMailFetch, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p fetchPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode fetch payload: %w", err)
		}
		msgs, err := fetcher.FetchNew(ctx, time.Duration(p.MaxAgeSeconds)*time.Second, p.Max, p.OnlyUnseen)
		if err != nil {
			return nil, err
		}
		return fetchResult{Messages: msgs}, nil
	})

	reg.Register(OpMailMarkSeen, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p uidsPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode mark-seen payload: %w", err)
		}
		return nil, fetcher.MarkSeen(ctx, p.UIDs)
	})

	reg.Register(OpMailDelete, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p uidsPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode delete payload: %w", err)
		}
		return nil, fetcher.Delete(ctx, p.UIDs)
	})

	reg.Register(OpMailSend, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p sendPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode send payload: %w", err)
		}
		return nil, sender.Send(ctx, p.Message)
	})

	reg.Register(OpLLMComplete, func(ctx context.Context, payload encjson.RawMessage) (any, error) {
		var p llmPayload
		if err := gojson.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode llm payload: %w", err)
		}
		resp, err := chat.Complete(ctx, llm.Request{
			Model:        p.Model,
			SystemPrompt: p.SystemPrompt,
			Input:        p.Input,
			Params:       p.Params,
		})
		if err != nil {
			return nil, err
		}
		return llmResult{Text: resp.Text, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}, nil
	})
}
