package mailio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/ashgrove/autoreply/internal/config"
	"github.com/ashgrove/autoreply/internal/mail"
)

// smtpDialTimeout bounds connection establishment when the caller's
// context carries no deadline of its own.
const smtpDialTimeout = 30 * time.Second

// Sender delivers outbound messages over SMTP. Unlike Fetcher it
// keeps no persistent connection: each Send dials, authenticates,
// and hangs up, matching the send task's one-message-per-call shape
// (spec.md §4.G).
type Sender struct {
	account config.Account
}

// NewSender builds a Sender for the given account.
func NewSender(account config.Account) *Sender {
	return &Sender{account: account}
}

// Send delivers msg, which must already carry a rendered RFC 5322
// body in Raw (see Compose).
func (s *Sender) Send(ctx context.Context, msg *mail.Message) error {
	enc, err := s.account.ResolvedEncryption(config.SMTPCapability)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.account.Host, strconv.Itoa(s.account.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var client *smtp.Client
	if enc == config.EncryptionTLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.account.Host})
		if err != nil {
			return fmt.Errorf("dial SMTPS %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.account.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial SMTP %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.account.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if enc == config.EncryptionSTARTTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.account.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if s.account.Username != "" {
		auth := saslAuth{sasl.NewPlainClient("", s.account.Username, s.account.Password)}
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(msg.From.Bare()); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to.Bare()); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", to.Bare(), err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg.Raw); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	return client.Quit()
}

// saslAuth adapts a go-sasl client to the net/smtp Auth interface,
// so delivery runs through the shared SASL mechanism implementation
// instead of net/smtp's own (PLAIN-only, unextendable) auth.
type saslAuth struct {
	client sasl.Client
}

func (a saslAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	mech, ir, err := a.client.Start()
	if err != nil {
		return "", nil, err
	}
	return mech, ir, nil
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}
