package filter

import (
	"context"
	"testing"

	"github.com/ashgrove/autoreply/internal/mail"
)

func msgFrom(addr, body string) *mail.Message {
	return &mail.Message{
		From: mail.ParseAddress(addr),
		Body: body,
	}
}

func TestAllowAll(t *testing.T) {
	t.Parallel()
	allow, reason, err := AllowAll{}.Check(context.Background(), msgFrom("a@b.com", ""))
	if err != nil || !allow || reason != "" {
		t.Errorf("AllowAll.Check() = %v, %q, %v", allow, reason, err)
	}
}

func TestSecretKey(t *testing.T) {
	t.Parallel()
	r := SecretKey{Key: "sesame"}

	msg := msgFrom("a@b.com", "  sesameHello there")
	allow, _, err := r.Check(context.Background(), msg)
	if err != nil || !allow {
		t.Fatalf("Check() = %v, %v, want allow", allow, err)
	}
	if msg.Body != "Hello there" {
		t.Errorf("Body = %q, want %q", msg.Body, "Hello there")
	}

	// Idempotence: re-running on the already-stripped body blocks
	// (spec.md §8).
	allow2, reason2, err2 := r.Check(context.Background(), msg)
	if err2 != nil || allow2 {
		t.Errorf("re-Check() = %v, %q, %v, want BLOCK", allow2, reason2, err2)
	}

	msg3 := msgFrom("a@b.com", "no key here")
	allow3, reason3, _ := r.Check(context.Background(), msg3)
	if allow3 || reason3 == "" {
		t.Errorf("Check(no key) = %v, %q, want BLOCK with reason", allow3, reason3)
	}
}

func TestFilterSender_Allowlist(t *testing.T) {
	t.Parallel()
	r := NewFilterSender(Allowlist, []string{"ok@example.com", "*@trusted.com"})

	cases := []struct {
		addr string
		want bool
	}{
		{"ok@example.com", true},
		{"a@trusted.com", true},
		{"b@trusted.com", true},
		{"a@other.com", false},
	}
	for _, tc := range cases {
		allow, _, err := r.Check(context.Background(), msgFrom(tc.addr, ""))
		if err != nil {
			t.Fatalf("Check(%s): %v", tc.addr, err)
		}
		if allow != tc.want {
			t.Errorf("Check(%s) = %v, want %v", tc.addr, allow, tc.want)
		}
	}
}

func TestFilterSender_Denylist(t *testing.T) {
	t.Parallel()
	r := NewFilterSender(Denylist, []string{"*@x.com"})

	allow, _, _ := r.Check(context.Background(), msgFrom("spam@x.com", ""))
	if allow {
		t.Error("expected denylist match to BLOCK")
	}
	allow2, _, _ := r.Check(context.Background(), msgFrom("ok@y.com", ""))
	if !allow2 {
		t.Error("expected non-match to ALLOW")
	}
}

// TestScenario_FetchFilterDrop is spec.md §8 scenario 1.
func TestScenario_FetchFilterDrop(t *testing.T) {
	t.Parallel()
	chain, err := BuildChain(nil, ChainConfig{
		FilterSender: &FilterSenderConfig{Mode: Denylist, Entries: []string{"*@x.com"}},
	})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}

	allow, err := chain.Apply(context.Background(), msgFrom("spam@x.com", "hi"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if allow {
		t.Error("expected message from spam@x.com to be blocked")
	}
}

func TestChain_ShortCircuitsOnFirstBlock(t *testing.T) {
	t.Parallel()

	calledSecond := false
	second := &countingRule{onCheck: func() (bool, string, error) {
		calledSecond = true
		return true, "", nil
	}}
	chain := NewChain(nil, &countingRule{onCheck: func() (bool, string, error) {
		return false, "blocked first", nil
	}}, second)

	allow, err := chain.Apply(context.Background(), msgFrom("a@b.com", ""))
	if err != nil || allow {
		t.Fatalf("Apply() = %v, %v, want blocked", allow, err)
	}
	if calledSecond {
		t.Error("second rule should not run after the first blocks")
	}
}

func TestChain_PropagatesRuleError(t *testing.T) {
	t.Parallel()

	wantErr := errRuleFailure{}
	chain := NewChain(nil, &countingRule{onCheck: func() (bool, string, error) {
		return false, "", wantErr
	}})

	_, err := chain.Apply(context.Background(), msgFrom("a@b.com", ""))
	if err != wantErr {
		t.Errorf("Apply() err = %v, want %v", err, wantErr)
	}
}

type errRuleFailure struct{}

func (errRuleFailure) Error() string { return "rule failed" }

type countingRule struct {
	onCheck func() (bool, string, error)
}

func (*countingRule) Name() string { return "counting" }

func (r *countingRule) Check(context.Context, *mail.Message) (bool, string, error) {
	return r.onCheck()
}

func TestBuildChain_DefaultOrder(t *testing.T) {
	t.Parallel()
	window := &RateLimitConfig{Limit: 1}
	key := "k"
	chain, err := BuildChain(nil, ChainConfig{
		SecretKey:       &key,
		RateLimitGlobal: window,
	})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}
	names := make([]string, 0)
	for _, r := range chain.Rules() {
		names = append(names, r.Name())
	}
	if len(names) != 2 || names[0] != "secret-key" || names[1] != "rate-limit-global" {
		t.Errorf("Rules() order = %v, want [secret-key rate-limit-global]", names)
	}
}

func TestBuildChain_OrderOverride(t *testing.T) {
	t.Parallel()
	window := &RateLimitConfig{Limit: 1}
	key := "k"
	chain, err := BuildChain(nil, ChainConfig{
		SecretKey:       &key,
		RateLimitGlobal: window,
		Order:           []string{"rate-limit-global", "secret-key"},
	})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}
	names := make([]string, 0)
	for _, r := range chain.Rules() {
		names = append(names, r.Name())
	}
	if len(names) != 2 || names[0] != "rate-limit-global" || names[1] != "secret-key" {
		t.Errorf("Rules() order = %v, want override order", names)
	}
}

func TestBuildChain_UnconfiguredOrderNameIsError(t *testing.T) {
	t.Parallel()
	_, err := BuildChain(nil, ChainConfig{Order: []string{"filter-sender"}})
	if err == nil {
		t.Error("expected error for order referencing unconfigured rule")
	}
}

func TestBuildChain_EmptyDefaultsToAllowAll(t *testing.T) {
	t.Parallel()
	chain, err := BuildChain(nil, ChainConfig{})
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}
	if len(chain.Rules()) != 1 || chain.Rules()[0].Name() != "allow-all" {
		t.Errorf("Rules() = %v, want [allow-all]", chain.Rules())
	}
}
