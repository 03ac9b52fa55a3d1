package mailio

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"github.com/ashgrove/autoreply/internal/mail"
)

// QuoteOriginal renders the quoted-reply block appended under a
// generated reply, per spec.md §4.F step 5: a blank line, an
// attribution line, a blank line, then every line of the original
// body prefixed "> ".
func QuoteOriginal(orig *mail.Message) string {
	attribution := fmt.Sprintf("%s said at %s:", orig.From.String(), orig.SentAt.Format("2006-01-02 15:04"))

	lines := strings.Split(orig.Body, "\n")
	quoted := make([]string, len(lines))
	for i, l := range lines {
		quoted[i] = "> " + l
	}

	return "\n\n" + attribution + "\n\n" + strings.Join(quoted, "\n")
}

// Compose builds msg (a reply skeleton from mail.NewReply, with
// From/To/Subject/threading headers already set) into a complete
// RFC 5322 message: replyText followed by the quoted orig beneath
// it, per spec.md §4.F step 5. Fills msg.Body and msg.Raw.
func Compose(msg *mail.Message, orig *mail.Message, replyText string) error {
	body := replyText + QuoteOriginal(orig)

	var h gomail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(msg.Subject)

	from, err := gomail.ParseAddress(msg.From.String())
	if err != nil {
		return fmt.Errorf("parse from address %q: %w", msg.From.String(), err)
	}
	h.SetAddressList("From", []*gomail.Address{from})

	to := make([]*gomail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		parsed, err := gomail.ParseAddress(addr.String())
		if err != nil {
			return fmt.Errorf("parse to address %q: %w", addr.String(), err)
		}
		to = append(to, parsed)
	}
	h.SetAddressList("To", to)

	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
	}
	if len(msg.References) > 0 {
		h.SetMsgIDList("References", msg.References)
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create inline writer: %w", err)
	}

	var ph gomail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create plain text part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write plain text: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close plain text part: %w", err)
	}

	htmlBody, err := markdownToHTML(body)
	if err != nil {
		return fmt.Errorf("render markdown to HTML: %w", err)
	}
	var hh gomail.InlineHeader
	hh.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := tw.CreatePart(hh)
	if err != nil {
		return fmt.Errorf("create html part: %w", err)
	}
	if _, err := io.WriteString(hw, htmlBody); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	if err := hw.Close(); err != nil {
		return fmt.Errorf("close html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close mail writer: %w", err)
	}

	msg.Body = body
	msg.Raw = buf.Bytes()
	return nil
}

// markdownToHTML renders markdown to a minimal standalone HTML
// document, giving the reply an HTML alternative part alongside its
// plain text (SPEC_FULL's supplemented HTML-alt-part feature).
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String()), nil
}
