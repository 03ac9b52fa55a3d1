package mail

import (
	"regexp"
	"testing"
)

func TestBotValidate(t *testing.T) {
	tests := []struct {
		name    string
		bot     Bot
		wantErr bool
	}{
		{
			name:    "address only is valid",
			bot:     Bot{Name: "a", Address: "a@h.com", MaxInputLength: 10},
			wantErr: false,
		},
		{
			name:    "regex only is valid",
			bot:     Bot{Name: "a", AddressRegex: regexp.MustCompile(`.*`), MaxInputLength: 10},
			wantErr: false,
		},
		{
			name:    "neither is an error",
			bot:     Bot{Name: "a", MaxInputLength: 10},
			wantErr: true,
		},
		{
			name:    "both is an error",
			bot:     Bot{Name: "a", Address: "a@h.com", AddressRegex: regexp.MustCompile(`.*`), MaxInputLength: 10},
			wantErr: true,
		},
		{
			name:    "missing name",
			bot:     Bot{Address: "a@h.com", MaxInputLength: 10},
			wantErr: true,
		},
		{
			name:    "non-positive max input length",
			bot:     Bot{Name: "a", Address: "a@h.com", MaxInputLength: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bot.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolverResolve(t *testing.T) {
	bots := []Bot{
		{Name: "exact", Address: "bot@h.com", MaxInputLength: 10},
		{Name: "regex", AddressRegex: regexp.MustCompile(`^support.*@h\.com$`), MaxInputLength: 10},
	}
	r := NewResolver(bots)

	msg := &Message{To: []Address{ParseAddress("bot@h.com")}}
	if got, ok := r.Resolve(msg); !ok || got.Name != "exact" {
		t.Errorf("Resolve(exact) = %+v, %v", got, ok)
	}

	msg2 := &Message{To: []Address{ParseAddress("support-1@h.com")}}
	if got, ok := r.Resolve(msg2); !ok || got.Name != "regex" {
		t.Errorf("Resolve(regex) = %+v, %v", got, ok)
	}

	msg3 := &Message{To: []Address{ParseAddress("nobody@other.com")}}
	if _, ok := r.Resolve(msg3); ok {
		t.Error("Resolve(no match) should return ok=false")
	}

	msg4 := &Message{}
	if _, ok := r.Resolve(msg4); ok {
		t.Error("Resolve(no recipients) should return ok=false")
	}
}

func TestBotMatchesOnlyPrimaryRecipient(t *testing.T) {
	bots := []Bot{{Name: "a", Address: "second@h.com", MaxInputLength: 10}}
	r := NewResolver(bots)

	// The bot address is the second recipient, not the primary one;
	// resolution only considers To[0].
	msg := &Message{To: []Address{ParseAddress("first@h.com"), ParseAddress("second@h.com")}}
	if _, ok := r.Resolve(msg); ok {
		t.Error("Resolve should only match the primary (first) recipient")
	}
}
