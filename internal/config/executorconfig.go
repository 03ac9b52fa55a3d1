package config

import "fmt"

// ExecutorType selects the worker-pool implementation backing the
// mail-fetch, reply-spawn and mail-send tasks (spec.md §4.H).
type ExecutorType string

const (
	ExecutorThread  ExecutorType = "thread"
	ExecutorProcess ExecutorType = "process"
)

// ExecutorConfig configures the executor pool shared by the three
// pipeline tasks.
type ExecutorConfig struct {
	Type  ExecutorType `yaml:"type"`
	Count int          `yaml:"count"`
}

func validateExecutorConfig(e ExecutorConfig) error {
	switch e.Type {
	case ExecutorThread, ExecutorProcess:
	default:
		return fmt.Errorf("unknown executor type %q (valid: thread, process)", e.Type)
	}
	if e.Count < 1 {
		return fmt.Errorf("executor.count must be at least 1")
	}
	return nil
}
