package filter

import (
	"fmt"
	"log/slog"
	"time"
)

// defaultOrder is the canonical rule order of spec.md §9 "Open
// question: filter ordering": secret-key first, rate-limits last. A
// deployer may override it via ChainConfig.Order.
var defaultOrder = []string{
	"secret-key",
	"filter-sender",
	"rate-limit-global",
	"rate-limit-per-domain",
	"rate-limit-per-sender",
}

// FilterSenderConfig configures the FilterSender rule.
type FilterSenderConfig struct {
	Mode    SenderMode
	Entries []string
}

// RateLimitConfig configures the global rate-limit rule.
type RateLimitConfig struct {
	Window time.Duration
	Limit  int
}

// KeyedRateLimitConfig configures a per-sender or per-domain
// rate-limit rule.
type KeyedRateLimitConfig struct {
	Window     time.Duration
	Limit      int
	MaxEntries int
}

// ChainConfig enumerates which rules are present. A nil field means
// that rule is not constructed at all, per spec.md §4.D: "each
// present only if configured."
type ChainConfig struct {
	SecretKey          *string
	FilterSender       *FilterSenderConfig
	RateLimitGlobal    *RateLimitConfig
	RateLimitPerDomain *KeyedRateLimitConfig
	RateLimitPerSender *KeyedRateLimitConfig

	// Order overrides defaultOrder when non-empty. Every name in Order
	// must correspond to a configured rule; unknown names are a
	// configuration error.
	Order []string
}

// BuildChain constructs a Chain from cfg, honoring the canonical
// ordering unless overridden.
func BuildChain(logger *slog.Logger, cfg ChainConfig) (*Chain, error) {
	built := map[string]Rule{}

	if cfg.SecretKey != nil {
		built["secret-key"] = SecretKey{Key: *cfg.SecretKey}
	}
	if cfg.FilterSender != nil {
		built["filter-sender"] = NewFilterSender(cfg.FilterSender.Mode, cfg.FilterSender.Entries)
	}
	if cfg.RateLimitGlobal != nil {
		built["rate-limit-global"] = NewRateLimitGlobal(cfg.RateLimitGlobal.Window, cfg.RateLimitGlobal.Limit)
	}
	if cfg.RateLimitPerDomain != nil {
		built["rate-limit-per-domain"] = NewRateLimitPerDomain(
			cfg.RateLimitPerDomain.Window, cfg.RateLimitPerDomain.Limit, cfg.RateLimitPerDomain.MaxEntries)
	}
	if cfg.RateLimitPerSender != nil {
		built["rate-limit-per-sender"] = NewRateLimitPerSender(
			cfg.RateLimitPerSender.Window, cfg.RateLimitPerSender.Limit, cfg.RateLimitPerSender.MaxEntries)
	}

	order := cfg.Order
	if len(order) == 0 {
		for _, name := range defaultOrder {
			if _, ok := built[name]; ok {
				order = append(order, name)
			}
		}
	}

	rules := make([]Rule, 0, len(order))
	for _, name := range order {
		r, ok := built[name]
		if !ok {
			return nil, fmt.Errorf("filter: order references unconfigured rule %q", name)
		}
		rules = append(rules, r)
	}

	if len(rules) == 0 {
		rules = append(rules, AllowAll{})
	}

	return NewChain(logger, rules...), nil
}
