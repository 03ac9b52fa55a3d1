package filter

import (
	"context"
	"strings"

	"github.com/ashgrove/autoreply/internal/mail"
)

// SecretKey gates on a configured token prefix, stripping it from the
// body on success so downstream stages see the gated-out key removed
// (spec.md §4.D rule 2). Re-applying the rule to an already-stripped
// body blocks, since the token is gone (spec.md §8).
type SecretKey struct {
	Key string
}

func (SecretKey) Name() string { return "secret-key" }

func (s SecretKey) Check(_ context.Context, msg *mail.Message) (bool, string, error) {
	body := strings.TrimLeft(msg.Body, " \t\r\n")
	if !strings.HasPrefix(body, s.Key) {
		return false, "secret key check failed", nil
	}
	body = strings.TrimPrefix(body, s.Key)
	msg.Body = strings.TrimLeft(body, " \t\r\n")
	return true, "", nil
}
