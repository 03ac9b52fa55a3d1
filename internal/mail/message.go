// Package mail holds the wire-independent message and bot data model
// shared by the security filter, the pipeline tasks, and the IMAP/SMTP
// capabilities. Nothing in this package talks to a network.
package mail

import (
	"strings"
	"time"
)

// Address is a single RFC 5322 mailbox with an optional display name.
type Address struct {
	// Name is the display name ("Alice"), empty if none was given.
	Name string

	// Mailbox is the local part of the address ("alice").
	Mailbox string

	// Domain is the domain part ("example.com").
	Domain string
}

// String renders the address as "Name <mailbox@domain>" or just
// "mailbox@domain" when there is no display name.
func (a Address) String() string {
	addr := a.Mailbox + "@" + a.Domain
	if a.Name == "" {
		return addr
	}
	return a.Name + " <" + addr + ">"
}

// Bare returns the mailbox@domain form with no display name.
func (a Address) Bare() string {
	return a.Mailbox + "@" + a.Domain
}

// ParseAddress splits a "Name <mailbox@domain>" or bare "mailbox@domain"
// string into its parts. A malformed address (no "@") is returned with
// the whole input in Mailbox and an empty Domain.
func ParseAddress(s string) Address {
	s = strings.TrimSpace(s)

	name := ""
	bare := s
	if i := strings.LastIndexByte(s, '<'); i >= 0 && strings.HasSuffix(s, ">") {
		name = strings.TrimSpace(s[:i])
		bare = s[i+1 : len(s)-1]
	}

	at := strings.LastIndexByte(bare, '@')
	if at < 0 {
		return Address{Name: name, Mailbox: bare}
	}
	return Address{
		Name:    name,
		Mailbox: bare[:at],
		Domain:  strings.ToLower(bare[at+1:]),
	}
}

// Message is the canonical, immutable-after-fetch representation of an
// email traveling through the pipeline (§3 of the specification).
type Message struct {
	From Address
	To   []Address

	Subject string
	Body    string

	SentAt time.Time

	// UID is the server-assigned IMAP handle. Zero means "not yet
	// assigned" (e.g. a reply that has not been sent).
	UID uint32

	MessageID  string
	InReplyTo  string
	References []string

	// Raw preserves the original RFC 5322 bytes, kept for downstream
	// authentication checks (SPF/DKIM) that the core does not itself
	// perform but must not discard.
	Raw []byte
}

// repliedSubjectPrefix is the canonical reply subject prefix. Matching
// is case-insensitive per spec.md §9's "reply prefix" decision.
const repliedSubjectPrefix = "Re: "

// hasReplyPrefix reports whether subject already begins with "Re:"
// (any case), with or without the trailing space.
func hasReplyPrefix(subject string) bool {
	trimmed := strings.TrimLeft(subject, " \t")
	return len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:")
}

// ReplySubject prepends "Re: " to subject unless it is already present,
// case-insensitively.
func ReplySubject(subject string) string {
	if hasReplyPrefix(subject) {
		return subject
	}
	return repliedSubjectPrefix + subject
}

// NewReply builds a new Message replying to orig from the given bot
// address, with body as the (already-composed, quote-included) reply
// text. It implements the reply-construction invariant in spec.md §3:
// from = bot address, to = original sender, subject = "Re: "-prefixed,
// in_reply_to = original message id, references = original references.
func NewReply(orig *Message, from Address, body string) *Message {
	return &Message{
		From:       from,
		To:         []Address{orig.From},
		Subject:    ReplySubject(orig.Subject),
		Body:       body,
		SentAt:     time.Now(),
		InReplyTo:  orig.MessageID,
		References: append([]string{}, orig.References...),
	}
}
