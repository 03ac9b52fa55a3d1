package config

import (
	"fmt"
	"strings"
	"time"
)

// Encryption is the transport security mode for an IMAP or SMTP
// connection (spec.md §6 "Encryption modes").
type Encryption int

const (
	EncryptionNone Encryption = iota
	EncryptionSTARTTLS
	EncryptionTLS
)

// ParseEncryption parses a case-insensitive encryption mode string.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return EncryptionNone, nil
	case "STARTTLS":
		return EncryptionSTARTTLS, nil
	case "TLS", "SSL", "SSL/TLS":
		return EncryptionTLS, nil
	default:
		return 0, fmt.Errorf("unknown encryption mode %q (valid: none, starttls, tls)", s)
	}
}

func (e Encryption) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionSTARTTLS:
		return "starttls"
	case EncryptionTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Capability distinguishes the IMAP and SMTP account roles, since
// each has its own standard-port-to-encryption defaults.
type Capability int

const (
	IMAPCapability Capability = iota
	SMTPCapability
)

// standardPortEncryption returns the default encryption mode implied
// by a standard port, per spec.md §6. ok is false for a non-standard
// port, meaning the deployer must set encryption explicitly.
func standardPortEncryption(cap Capability, port int) (Encryption, bool) {
	switch cap {
	case IMAPCapability:
		switch port {
		case 143:
			return EncryptionSTARTTLS, true
		case 993:
			return EncryptionTLS, true
		}
	case SMTPCapability:
		switch port {
		case 25:
			return EncryptionNone, true
		case 587:
			return EncryptionSTARTTLS, true
		case 465:
			return EncryptionTLS, true
		}
	}
	return 0, false
}

// Account is the shared host/credentials/encryption shape for both
// the IMAP and SMTP capabilities (spec.md §6).
type Account struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Encryption string `yaml:"encryption"`
}

// ResolvedEncryption parses Encryption, defaulting it from the
// configured port when the field was left blank.
func (a Account) ResolvedEncryption(cap Capability) (Encryption, error) {
	if a.Encryption != "" {
		return ParseEncryption(a.Encryption)
	}
	if enc, ok := standardPortEncryption(cap, a.Port); ok {
		return enc, nil
	}
	return 0, fmt.Errorf("port %d is non-standard; encryption must be set explicitly", a.Port)
}

func applyAccountPortDefaults(a *Account, cap Capability) {
	if a.Port == 0 {
		switch cap {
		case IMAPCapability:
			a.Port = 993
		case SMTPCapability:
			a.Port = 587
		}
	}
}

func validateAccount(a Account, cap Capability) error {
	if a.Host == "" {
		return fmt.Errorf("host is required")
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("port %d out of range (1-65535)", a.Port)
	}
	if _, err := a.ResolvedEncryption(cap); err != nil {
		return err
	}
	return nil
}

// FetchMode selects the mail-fetch task's survivorship strategy
// (spec.md §6 "Fetch modes").
type FetchMode string

const (
	FetchModeMarkRead FetchMode = "mark_read"
	FetchModeDelete   FetchMode = "delete"
)

func validateFetchMode(m FetchMode) error {
	switch m {
	case FetchModeMarkRead, FetchModeDelete:
		return nil
	default:
		return fmt.Errorf("unknown fetch mode %q (valid: mark_read, delete)", m)
	}
}

// FetchConfig configures the mail-fetch task (spec.md §4.E).
type FetchConfig struct {
	Account        Account       `yaml:",inline"`
	MaxAgeDays     int           `yaml:"max_age_days"`
	FetchMax       int           `yaml:"fetch_max"`
	Mode           FetchMode     `yaml:"mode"`
	Interval       time.Duration `yaml:"interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

// SendConfig configures the mail-send task (spec.md §4.G).
type SendConfig struct {
	Account        Account       `yaml:",inline"`
	Interval       time.Duration `yaml:"interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
}

// ReplyConfig configures the reply-spawn task (spec.md §4.F).
type ReplyConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	Interval       time.Duration `yaml:"interval"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}
