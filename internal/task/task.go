// Package task implements the generic long-running-task abstraction
// described in spec.md §4.A: a Runner wraps a Task's step() in a
// periodic execution loop and exposes lifecycle control (start, stop,
// cancel, await result).
package task

import "context"

// Outcome is the result of one Step invocation.
type Outcome int

const (
	// Continue means the step completed and another should be scheduled.
	Continue Outcome = iota
	// Done means the task finished with a final value.
	Done
	// Raised means the step failed; the error is carried alongside.
	Raised
)

// StepResult is returned by Task.Step.
type StepResult struct {
	Outcome Outcome
	Value   any
	Err     error
}

// ContinueResult is a convenience constructor for the common case.
func ContinueResult() StepResult { return StepResult{Outcome: Continue} }

// DoneResult finishes the runner with a final value.
func DoneResult(value any) StepResult { return StepResult{Outcome: Done, Value: value} }

// RaisedResult propagates a failure from Step.
func RaisedResult(err error) StepResult { return StepResult{Outcome: Raised, Err: err} }

// Task is the user-supplied unit of repeated work. Step performs one
// unit of work and returns one of the three outcomes above.
//
// Implementations fall into two flavors per spec.md §4.A: async tasks,
// whose Step is naturally cooperative and returns quickly or respects
// ctx cancellation, and blocking tasks, whose Step does blocking I/O
// and is expected to be run through an executor.Pool by the caller
// that constructs the Runner (see pipeline.NewBlockingTask).
type Task interface {
	// Step performs one unit of work. ctx is cancelled when the runner
	// observes a Cancel request; implementations should check it at
	// safe suspension points.
	Step(ctx context.Context) StepResult

	// HandleException is called when Step returns Raised. Returning nil
	// swallows the error and the loop continues; returning a non-nil
	// error (often the same one) moves the runner to Failed.
	HandleException(err error) error

	// OnCancelled and OnStopped run on the respective terminal
	// transitions. Per spec.md §4.A they must not raise; any error is
	// logged and swallowed by the runner, never surfaced to Result.
	OnCancelled()
	OnStopped()
}

// BaseTask provides no-op HandleException/OnCancelled/OnStopped hooks.
// Embed it in a Task implementation to avoid boilerplate when the
// default behavior (re-raise everything, no cleanup) is correct.
type BaseTask struct{}

func (BaseTask) HandleException(err error) error { return err }
func (BaseTask) OnCancelled()                    {}
func (BaseTask) OnStopped()                      {}
