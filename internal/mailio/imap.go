// Package mailio adapts the wire-independent mail.Message model to
// real IMAP and SMTP connections, and builds outbound RFC 5322
// messages from reply text.
package mailio

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	xhtml "golang.org/x/net/html"

	"github.com/ashgrove/autoreply/internal/config"
	"github.com/ashgrove/autoreply/internal/mail"
)

// maxBodySize bounds the text extracted from any one message; larger
// bodies are truncated rather than held in memory whole.
const maxBodySize = 32 * 1024

// maxRawMessageSize bounds how much of the raw literal a Fetch will
// buffer before giving up on parsing a usable body.
const maxRawMessageSize = 5 * 1024 * 1024

// Fetcher is a single-account IMAP client with mutex-serialized
// access and reconnect-on-staleness, following the retrieved Thane
// email client's ensureConnected discipline.
type Fetcher struct {
	account config.Account

	mu     sync.Mutex
	client *imapclient.Client
}

// NewFetcher builds a Fetcher for the given account. The connection
// is established lazily on first use.
func NewFetcher(account config.Account) *Fetcher {
	return &Fetcher{account: account}
}

func (f *Fetcher) connectLocked(ctx context.Context) error {
	if f.client != nil {
		_ = f.client.Close()
		f.client = nil
	}

	enc, err := f.account.ResolvedEncryption(config.IMAPCapability)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(f.account.Host, strconv.Itoa(f.account.Port))

	var opts imapclient.Options
	if enc != config.EncryptionNone {
		opts.TLSConfig = &tls.Config{ServerName: f.account.Host}
	}

	var client *imapclient.Client
	switch enc {
	case config.EncryptionTLS:
		client, err = imapclient.DialTLS(addr, &opts)
	case config.EncryptionSTARTTLS:
		// Dials a plain socket and upgrades it with STARTTLS before
		// login.
		client, err = imapclient.DialStartTLS(addr, &opts)
	default:
		client, err = imapclient.DialInsecure(addr, &opts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	loginCmd := client.Login(f.account.Username, f.account.Password)
	if err := loginCmd.Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("login as %s: %w", f.account.Username, err)
	}

	f.client = client
	return nil
}

// ensureConnected reconnects if the connection is absent or a NOOP
// round-trip fails, the same staleness check the retrieved email
// client uses before every operation.
func (f *Fetcher) ensureConnected(ctx context.Context) error {
	if f.client != nil {
		if err := f.client.Noop().Wait(); err == nil {
			return nil
		}
	}
	return f.connectLocked(ctx)
}

func (f *Fetcher) selectInbox() error {
	cmd := f.client.Select("INBOX", nil)
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("select INBOX: %w", err)
	}
	return nil
}

// Close logs out and releases the connection.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

// FetchNew returns messages from INBOX newer than maxAge, up to max
// messages, oldest first (the order the fetch task should enqueue and,
// eventually, mark/delete them in). When onlyUnseen is true the search
// is restricted to unread messages (the mark-read fetch mode of
// spec.md §4.E step 3); when false it returns everything in the age
// window regardless of \Seen, matching the delete fetch mode, which
// has no other way to avoid re-fetching a message it is about to
// remove.
func (f *Fetcher) FetchNew(ctx context.Context, maxAge time.Duration, max int, onlyUnseen bool) ([]*mail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if err := f.selectInbox(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{}
	if onlyUnseen {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if maxAge > 0 {
		criteria.Since = time.Now().Add(-maxAge)
	}

	searchCmd := f.client.UIDSearch(criteria, nil)
	searchData, err := searchCmd.Wait()
	if err != nil {
		return nil, fmt.Errorf("search INBOX: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}

	var out []*mail.Message
	for _, uid := range uids {
		msg, err := f.fetchOne(uid)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// fetchOne fetches and parses a single message by UID. Caller must
// hold f.mu with INBOX already selected.
func (f *Fetcher) fetchOne(uid imap.UID) (*mail.Message, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	fetchOpts := &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true}, // Leave \Seen alone; the pipeline marks it explicitly.
		},
	}

	fetchCmd := f.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	data := fetchCmd.Next()
	if data == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	msg := &mail.Message{UID: uint32(uid)}
	var raw []byte

	for {
		item := data.Next()
		if item == nil {
			break
		}
		switch v := item.(type) {
		case imapclient.FetchItemDataEnvelope:
			if v.Envelope != nil {
				msg.SentAt = v.Envelope.Date
				msg.Subject = v.Envelope.Subject
				msg.MessageID = v.Envelope.MessageID
				msg.InReplyTo = v.Envelope.InReplyTo
				if len(v.Envelope.From) > 0 {
					msg.From = imapAddress(v.Envelope.From[0])
				}
				for _, a := range v.Envelope.To {
					msg.To = append(msg.To, imapAddress(a))
				}
			}
		case imapclient.FetchItemDataBodySection:
			if v.Literal != nil {
				raw, _ = io.ReadAll(io.LimitReader(v.Literal, maxRawMessageSize))
				_, _ = io.Copy(io.Discard, v.Literal)
			}
		}
	}

	if raw != nil {
		msg.Raw = raw
		body, refs, _ := parseBody(raw)
		msg.Body = body
		if len(refs) > 0 {
			msg.References = refs
		}
	}
	return msg, nil
}

func imapAddress(a imap.Address) mail.Address {
	return mail.Address{Name: a.Name, Mailbox: a.Mailbox, Domain: strings.ToLower(a.Host)}
}

// parseBody walks the MIME structure of a raw RFC 5322 message and
// extracts a text body (preferring text/plain, falling back to a
// tag-stripped text/html part) plus the References header, which is
// not exposed by the IMAP ENVELOPE.
func parseBody(raw []byte) (body string, references []string, err error) {
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return "", nil, fmt.Errorf("create mail reader: %w", err)
	}
	if r == nil {
		return "", nil, fmt.Errorf("create mail reader returned nil")
	}

	if refs, err := r.Header.MsgIDList("References"); err == nil {
		references = refs
	}

	var plain, html string
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !gomessage.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			continue
		}
		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch {
		case ct == "text/plain" && plain == "":
			plain = readBounded(part.Body)
		case ct == "text/html" && html == "":
			html = readBounded(part.Body)
		}
	}

	if plain != "" {
		return strings.TrimSpace(plain), references, nil
	}
	if html != "" {
		return strings.TrimSpace(stripHTML(html)), references, nil
	}
	return "", references, nil
}

func readBounded(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	s := string(b)
	if len(b) > maxBodySize {
		s = s[:maxBodySize] + "\n\n[truncated]"
	}
	return s
}

// stripHTML renders an HTML body down to its visible text, used as
// the fallback capability when a message carries no text/plain
// alternative (spec.md's plain-text-preferred rule).
func stripHTML(h string) string {
	doc, err := xhtml.Parse(strings.NewReader(h))
	if err != nil {
		return h
	}
	var buf bytes.Buffer
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xhtml.ElementNode && (n.Data == "p" || n.Data == "br" || n.Data == "div") {
			buf.WriteString("\n")
		}
	}
	walk(doc)
	return buf.String()
}

// MarkSeen marks the given UIDs with the \Seen flag.
func (f *Fetcher) MarkSeen(ctx context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureConnected(ctx); err != nil {
		return err
	}
	if err := f.selectInbox(); err != nil {
		return err
	}

	uidSet := imap.UIDSet{}
	for _, u := range uids {
		uidSet.AddNum(imap.UID(u))
	}

	storeCmd := f.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Delete marks the given UIDs \Deleted and expunges them.
func (f *Fetcher) Delete(ctx context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureConnected(ctx); err != nil {
		return err
	}
	if err := f.selectInbox(); err != nil {
		return err
	}

	uidSet := imap.UIDSet{}
	for _, u := range uids {
		uidSet.AddNum(imap.UID(u))
	}

	storeCmd := f.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("store \\Deleted: %w", err)
	}

	expungeCmd := f.client.Expunge()
	if err := expungeCmd.Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}
