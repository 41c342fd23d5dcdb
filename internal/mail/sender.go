// Package mail renders and delivers workflow notifications. Delivery is
// best-effort: the workflow fires notifications after commit and logs
// failures without rolling anything back.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"datarequest/internal/domain"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, msg.To, []byte(b.String())); err != nil {
		return domain.ErrNotification.Wrap(err)
	}
	return nil
}

// LogSender logs messages instead of delivering them. Used in simulate mode
// and by tests, which inspect the captured messages.
type LogSender struct {
	Log *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	if s.Log != nil {
		s.Log.Info("mail (simulated)",
			zap.Strings("to", msg.To),
			zap.String("subject", msg.Subject))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, *msg)
	return nil
}

// Sent returns a copy of all captured messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
