package pipeline

import (
	"context"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/ashgrove/autoreply/internal/executor"
)

// decodeAs normalizes an executor.Future's result to T. ThreadPool
// hands back the handler's Go value unchanged; ProcessPool round-trips
// it through a length-prefixed JSON frame, so the value arriving here
// is a generic map[string]any/[]any/float64 rather than T. Re-marshal
// and re-unmarshal through goccy's json (the same codec the wire
// protocol uses) normalizes both cases to the same typed result.
func decodeAs[T any](val any) (T, error) {
	var out T
	b, err := gojson.Marshal(val)
	if err != nil {
		return out, fmt.Errorf("pipeline: marshal job result: %w", err)
	}
	if err := gojson.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("pipeline: decode job result: %w", err)
	}
	return out, nil
}

// submitAndWait submits job to pool, waits for its Future, and decodes
// the result as T.
func submitAndWait[T any](ctx context.Context, pool executor.Pool, job executor.Job) (T, error) {
	var zero T
	fut, err := pool.Submit(ctx, job)
	if err != nil {
		return zero, err
	}
	val, err := fut.Wait(ctx)
	if err != nil {
		return zero, err
	}
	return decodeAs[T](val)
}
