package filter

import (
	"context"

	"github.com/ashgrove/autoreply/internal/mail"
)

// AllowAll is the trivial identity rule, useful as an explicit
// default when no other rules are configured (spec.md §4.D rule 1).
type AllowAll struct{}

func (AllowAll) Name() string { return "allow-all" }

func (AllowAll) Check(context.Context, *mail.Message) (bool, string, error) {
	return true, "", nil
}
