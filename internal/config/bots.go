package config

import (
	"fmt"
	"regexp"

	"github.com/ashgrove/autoreply/internal/mail"
)

// BotConfig is the YAML shape of a single bot entry (spec.md §3).
// Exactly one of Address / AddressRegex must be set.
type BotConfig struct {
	Name            string         `yaml:"name"`
	Address         string         `yaml:"address"`
	AddressRegex    string         `yaml:"address_regex"`
	MaxInputLength  int            `yaml:"max_input_length"`
	SystemPrompt    string         `yaml:"system_prompt"`
	Provider        string         `yaml:"provider"`
	ChatModelParams map[string]any `yaml:"chat_model_params"`
}

// ToMailBot compiles and validates a BotConfig into the wire-independent
// mail.Bot the pipeline and resolver operate on.
func (b BotConfig) ToMailBot() (mail.Bot, error) {
	bot := mail.Bot{
		Name:            b.Name,
		Address:         b.Address,
		MaxInputLength:  b.MaxInputLength,
		SystemPrompt:    b.SystemPrompt,
		ChatModelParams: b.ChatModelParams,
	}

	if b.AddressRegex != "" {
		re, err := regexp.Compile(b.AddressRegex)
		if err != nil {
			return mail.Bot{}, fmt.Errorf("bot %q: invalid address_regex: %w", b.Name, err)
		}
		bot.AddressRegex = re
	}

	if err := bot.Validate(); err != nil {
		return mail.Bot{}, err
	}
	return bot, nil
}
