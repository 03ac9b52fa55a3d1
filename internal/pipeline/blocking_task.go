package pipeline

import (
	"context"

	"github.com/ashgrove/autoreply/internal/task"
)

// BlockingTask adapts a plain step function into a task.Task. Every
// task in this package does its blocking work by submitting Jobs to
// an executor.Pool and waiting on the result, so there is no per-task
// state beyond the step closure and an optional exception handler —
// see task.Task's doc comment for the thread-vs-blocking distinction
// this was built to satisfy.
type BlockingTask struct {
	task.BaseTask
	step    func(ctx context.Context) task.StepResult
	onError func(err error) error
}

// NewBlockingTask builds a task.Task from step. When onError is nil,
// BaseTask's default (re-raise, moving the runner to Failed) applies;
// the mail-fetch, reply-spawn and mail-send tasks instead pass a handler that logs
// and returns nil, so a single failed iteration doesn't stop the
// runner (spec.md §4.E, §4.G: "the runner's handle_exception logs and
// re-schedules the next iteration").
func NewBlockingTask(step func(ctx context.Context) task.StepResult, onError func(err error) error) *BlockingTask {
	return &BlockingTask{step: step, onError: onError}
}

func (t *BlockingTask) Step(ctx context.Context) task.StepResult {
	return t.step(ctx)
}

func (t *BlockingTask) HandleException(err error) error {
	if t.onError != nil {
		return t.onError(err)
	}
	return t.BaseTask.HandleException(err)
}
