package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashgrove/autoreply/internal/mail"
)

// SenderMode selects how FilterSender treats its entry set.
type SenderMode int

const (
	Allowlist SenderMode = iota
	Denylist
)

func ParseSenderMode(s string) (SenderMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALLOWLIST":
		return Allowlist, nil
	case "DENYLIST":
		return Denylist, nil
	default:
		return 0, fmt.Errorf("filter: unknown sender mode %q", s)
	}
}

// FilterSender matches the message's From address against a set of
// entries, each either a full address (local@domain) or a wildcard
// domain entry (*@domain), parsed once at construction (spec.md §4.D
// rule 3).
type FilterSender struct {
	mode      SenderMode
	addresses map[string]struct{}
	domains   map[string]struct{}
}

// NewFilterSender parses entries into an address set and a domain
// set. Comparisons are case-insensitive (addresses and domains are
// lower-cased).
func NewFilterSender(mode SenderMode, entries []string) *FilterSender {
	fs := &FilterSender{
		mode:      mode,
		addresses: make(map[string]struct{}),
		domains:   make(map[string]struct{}),
	}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, "*@") {
			fs.domains[strings.TrimPrefix(e, "*@")] = struct{}{}
			continue
		}
		fs.addresses[e] = struct{}{}
	}
	return fs
}

func (*FilterSender) Name() string { return "filter-sender" }

func (fs *FilterSender) matches(addr mail.Address) bool {
	if _, ok := fs.addresses[strings.ToLower(addr.Bare())]; ok {
		return true
	}
	_, ok := fs.domains[strings.ToLower(addr.Domain)]
	return ok
}

func (fs *FilterSender) Check(_ context.Context, msg *mail.Message) (bool, string, error) {
	matched := fs.matches(msg.From)

	switch fs.mode {
	case Allowlist:
		if !matched {
			return false, fmt.Sprintf("sender %s not in allowlist", msg.From.Bare()), nil
		}
	case Denylist:
		if matched {
			return false, fmt.Sprintf("sender %s is in denylist", msg.From.Bare()), nil
		}
	}
	return true, "", nil
}
