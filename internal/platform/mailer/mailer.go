package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const (
	messageInvitation   = "invitation"
	messageConfirmation = "confirmation"
)

// Invitation asks an employee to accept or reject reserved items.
type Invitation struct {
	To           string
	EmployeeName string
	Kind         string // equipment|license
	Items        []string
	Link         string
	ExpiresAt    time.Time
}

// Confirmation acknowledges an accepted assignment.
type Confirmation struct {
	To           string
	EmployeeName string
	Kind         string
	Items        []string
}

type Gateway interface {
	SendInvitation(ctx context.Context, in Invitation) error
	SendConfirmation(ctx context.Context, c Confirmation) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP delivers mail through one relay. Each send dials a fresh connection.
type SMTP struct {
	dialer  *gomail.Dialer
	from    string
	catalog *Catalog
}

func NewSMTP(cfg SMTPConfig, catalog *Catalog) *SMTP {
	return &SMTP{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		catalog: catalog,
	}
}

func (s *SMTP) SendInvitation(ctx context.Context, in Invitation) error {
	return s.send(ctx, in.To, messageInvitation, in.Kind, in)
}

func (s *SMTP) SendConfirmation(ctx context.Context, c Confirmation) error {
	return s.send(ctx, c.To, messageConfirmation, c.Kind, c)
}

func (s *SMTP) send(ctx context.Context, to, message, kind string, data any) error {
	if to == "" {
		return fmt.Errorf("send %s: empty recipient", message)
	}
	subject, body, err := s.catalog.Render(message, kind, data)
	if err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s to %s: %w", message, to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send %s to %s: %w", message, to, ctx.Err())
	}
}

// Log renders messages and writes them to the log instead of sending them. Used when no
// SMTP relay is configured.
type Log struct {
	catalog *Catalog
	log     logrus.FieldLogger
}

func NewLog(catalog *Catalog, log logrus.FieldLogger) *Log {
	return &Log{catalog: catalog, log: log}
}

func (l *Log) SendInvitation(_ context.Context, in Invitation) error {
	return l.write(in.To, messageInvitation, in.Kind, in)
}

func (l *Log) SendConfirmation(_ context.Context, c Confirmation) error {
	return l.write(c.To, messageConfirmation, c.Kind, c)
}

func (l *Log) write(to, message, kind string, data any) error {
	subject, body, err := l.catalog.Render(message, kind, data)
	if err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mail not sent (no smtp relay)")
	l.log.Debug(body)
	return nil
}

// Recorder keeps messages in memory. Fail makes every send return an error.
type Recorder struct {
	mu            sync.Mutex
	Fail          bool
	Invitations   []Invitation
	Confirmations []Confirmation
}

func (r *Recorder) SendInvitation(_ context.Context, in Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return fmt.Errorf("send invitation to %s: relay unavailable", in.To)
	}
	r.Invitations = append(r.Invitations, in)
	return nil
}

func (r *Recorder) SendConfirmation(_ context.Context, c Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return fmt.Errorf("send confirmation to %s: relay unavailable", c.To)
	}
	r.Confirmations = append(r.Confirmations, c)
	return nil
}

// LastInvitation returns the most recent invitation, or false when none was sent.
func (r *Recorder) LastInvitation() (Invitation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Invitations) == 0 {
		return Invitation{}, false
	}
	return r.Invitations[len(r.Invitations)-1], true
}
