package config

import (
	"time"

	"github.com/ashgrove/autoreply/internal/filter"
)

// defaultRateLimitMaxEntries bounds an unconfigured per-sender/per-domain
// rate-limit table, per spec.md §9's open question on table growth
// (SPEC_FULL.md §13).
const defaultRateLimitMaxEntries = 10000

// FilterConfig is the YAML shape of the security filter chain
// (spec.md §4.D). Every field is optional; an unset rule is simply
// not built, per filter.ChainConfig's "present only if configured"
// contract.
type FilterConfig struct {
	SecretKey string `yaml:"secret_key"`

	SenderMode    string   `yaml:"sender_mode"`
	SenderEntries []string `yaml:"sender_entries"`

	RateLimitGlobal *rateLimitConfigYAML `yaml:"rate_limit_global"`

	RateLimitPerDomain *keyedRateLimitConfigYAML `yaml:"rate_limit_per_domain"`
	RateLimitPerSender *keyedRateLimitConfigYAML `yaml:"rate_limit_per_sender"`

	// Order overrides the canonical rule evaluation order.
	Order []string `yaml:"order"`
}

type rateLimitConfigYAML struct {
	Window time.Duration `yaml:"window"`
	Limit  int           `yaml:"limit"`
}

type keyedRateLimitConfigYAML struct {
	Window     time.Duration `yaml:"window"`
	Limit      int           `yaml:"limit"`
	MaxEntries int           `yaml:"max_entries"`
}

// Build translates the YAML config into a filter.Chain, validating it
// along the way (e.g. an Order entry naming an unconfigured rule).
func (f FilterConfig) Build() (*filter.Chain, error) {
	cfg := filter.ChainConfig{Order: f.Order}

	if f.SecretKey != "" {
		key := f.SecretKey
		cfg.SecretKey = &key
	}

	if len(f.SenderEntries) > 0 || f.SenderMode != "" {
		mode, err := filter.ParseSenderMode(f.SenderMode)
		if err != nil {
			return nil, err
		}
		cfg.FilterSender = &filter.FilterSenderConfig{Mode: mode, Entries: f.SenderEntries}
	}

	if f.RateLimitGlobal != nil {
		cfg.RateLimitGlobal = &filter.RateLimitConfig{
			Window: f.RateLimitGlobal.Window,
			Limit:  f.RateLimitGlobal.Limit,
		}
	}
	if f.RateLimitPerDomain != nil {
		maxEntries := f.RateLimitPerDomain.MaxEntries
		if maxEntries == 0 {
			maxEntries = defaultRateLimitMaxEntries
		}
		cfg.RateLimitPerDomain = &filter.KeyedRateLimitConfig{
			Window:     f.RateLimitPerDomain.Window,
			Limit:      f.RateLimitPerDomain.Limit,
			MaxEntries: maxEntries,
		}
	}
	if f.RateLimitPerSender != nil {
		maxEntries := f.RateLimitPerSender.MaxEntries
		if maxEntries == 0 {
			maxEntries = defaultRateLimitMaxEntries
		}
		cfg.RateLimitPerSender = &filter.KeyedRateLimitConfig{
			Window:     f.RateLimitPerSender.Window,
			Limit:      f.RateLimitPerSender.Limit,
			MaxEntries: maxEntries,
		}
	}

	return filter.BuildChain(nil, cfg)
}
