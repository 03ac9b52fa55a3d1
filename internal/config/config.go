// Package config handles loading and validating the autoreply
// platform's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/autoreply/config.yaml, /config/config.yaml,
// /etc/autoreply/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "autoreply", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/autoreply/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the full application assembly configuration (spec.md
// §4.H and §6).
type Config struct {
	Bots []BotConfig `yaml:"bots"`

	Fetch FetchConfig `yaml:"fetch"`
	Send  SendConfig  `yaml:"send"`
	Reply ReplyConfig `yaml:"reply"`

	IncomingQueue QueueConfig `yaml:"incoming_queue"`
	OutgoingQueue QueueConfig `yaml:"outgoing_queue"`

	Executor  ExecutorConfig `yaml:"executor"`
	Filter    FilterConfig   `yaml:"filter"`
	History   HistoryConfig  `yaml:"history"`
	Providers ProviderConfig `yaml:"providers"`

	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${IMAP_PASSWORD}) so secrets
	// can be injected at deploy time rather than committed to the file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}

	if c.Fetch.MaxAgeDays == 0 {
		c.Fetch.MaxAgeDays = 7
	}
	if c.Fetch.FetchMax == 0 {
		c.Fetch.FetchMax = 50
	}
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = FetchModeMarkRead
	}
	if c.Fetch.Interval == 0 {
		c.Fetch.Interval = 60 * time.Second
	}
	if c.Fetch.ConnectTimeout == 0 {
		c.Fetch.ConnectTimeout = 30 * time.Second
	}
	if c.Fetch.EnqueueTimeout == 0 {
		c.Fetch.EnqueueTimeout = 10 * time.Second
	}
	applyAccountPortDefaults(&c.Fetch.Account, IMAPCapability)

	if c.Send.Interval == 0 {
		c.Send.Interval = 5 * time.Second
	}
	if c.Send.ConnectTimeout == 0 {
		c.Send.ConnectTimeout = 30 * time.Second
	}
	if c.Send.DequeueTimeout == 0 {
		c.Send.DequeueTimeout = 10 * time.Second
	}
	applyAccountPortDefaults(&c.Send.Account, SMTPCapability)

	if c.Reply.MaxRetries == 0 {
		c.Reply.MaxRetries = 3
	}
	if c.Reply.RetryBackoff == 0 {
		c.Reply.RetryBackoff = 2 * time.Second
	}
	if c.Reply.DequeueTimeout == 0 {
		c.Reply.DequeueTimeout = 10 * time.Second
	}
	if c.Reply.EnqueueTimeout == 0 {
		c.Reply.EnqueueTimeout = 10 * time.Second
	}

	applyQueueDefaults(&c.IncomingQueue)
	applyQueueDefaults(&c.OutgoingQueue)

	if c.Executor.Type == "" {
		c.Executor.Type = ExecutorThread
	}
	if c.Executor.Count == 0 {
		c.Executor.Count = 4
	}

	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}

	for i := range c.Bots {
		if c.Bots[i].MaxInputLength == 0 {
			c.Bots[i].MaxInputLength = 4000
		}
		if c.Bots[i].Provider == "" {
			c.Bots[i].Provider = "ollama"
		}
	}

	applyProviderDefaults(&c.Providers)
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults.
func (c *Config) Validate() error {
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}
	for _, b := range c.Bots {
		if _, err := b.ToMailBot(); err != nil {
			return err
		}
	}

	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}

	if err := validateAccount(c.Fetch.Account, IMAPCapability); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := validateAccount(c.Send.Account, SMTPCapability); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := validateFetchMode(c.Fetch.Mode); err != nil {
		return err
	}

	if err := validateQueueConfig(c.IncomingQueue); err != nil {
		return fmt.Errorf("incoming_queue: %w", err)
	}
	if err := validateQueueConfig(c.OutgoingQueue); err != nil {
		return fmt.Errorf("outgoing_queue: %w", err)
	}

	if err := validateExecutorConfig(c.Executor); err != nil {
		return err
	}

	// spec.md §4.H: queue concurrency-safety must match the executor
	// variant (thread-pool -> in-process queue, process-pool ->
	// cross-process queue).
	wantQueueType := QueueMemory
	if c.Executor.Type == ExecutorProcess {
		wantQueueType = QueueRedis
	}
	if c.IncomingQueue.Type != wantQueueType || c.OutgoingQueue.Type != wantQueueType {
		return fmt.Errorf("executor type %q requires queue type %q on both queues", c.Executor.Type, wantQueueType)
	}

	if _, err := c.Filter.Build(); err != nil {
		return err
	}

	if err := validateProviderConfig(c.Providers, c.Bots); err != nil {
		return err
	}

	return nil
}
