// Package mailer turns queued email payloads into messages and delivers
// them.  It runs inside the mailer worker, never on the request path.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/iliyamo/shop-backend/internal/queue"
)

// Mail is a rendered message ready to send.
type Mail struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(
		`<p>Hello {{.UserName}},</p>
<p>Please confirm your email address by following <a href="{{.Link}}">this link</a>.</p>
<p>If you did not create an account, ignore this message.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`<p>Hello {{.UserName}},</p>
<p>Use <a href="{{.Link}}">this link</a> to choose a new password. It expires in {{.ExpiresInMinutes}} minutes.</p>
<p>If you did not ask for a reset, ignore this message.</p>`))

	welcomeTmpl = template.Must(template.New("welcome").Parse(
		`<p>Hello {{.UserName}},</p>
<p>Your email is confirmed and your account is fully active.</p>`))
)

// Render decodes a payload taken from queueName and renders it.
func Render(queueName string, body []byte) (Mail, error) {
	switch queueName {
	case queue.QueueEmail:
		var p queue.EmailMessage
		if err := decode(body, &p); err != nil {
			return Mail{}, err
		}
		return Mail{To: p.To, Subject: p.Subject, Body: p.Body, HTML: p.HTML}, nil
	case queue.QueueVerification:
		var p queue.VerificationEmail
		if err := decode(body, &p); err != nil {
			return Mail{}, err
		}
		return execute(p.To, "Confirm your email", verificationTmpl, p)
	case queue.QueuePasswordReset:
		var p queue.PasswordResetEmail
		if err := decode(body, &p); err != nil {
			return Mail{}, err
		}
		return execute(p.To, "Reset your password", resetTmpl, p)
	case queue.QueueRegistrationSuccess:
		var p queue.RegistrationSuccessEmail
		if err := decode(body, &p); err != nil {
			return Mail{}, err
		}
		return execute(p.To, "Welcome aboard", welcomeTmpl, p)
	}
	return Mail{}, fmt.Errorf("mailer: unknown queue %q", queueName)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("mailer: unmarshal: %w", err)
	}
	return nil
}

func execute(to, subject string, t *template.Template, data any) (Mail, error) {
	if to == "" {
		return Mail{}, fmt.Errorf("mailer: %s: empty recipient", t.Name())
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return Mail{}, fmt.Errorf("mailer: render %s: %w", t.Name(), err)
	}
	return Mail{To: to, Subject: subject, Body: buf.String(), HTML: true}, nil
}

// NewHandler renders each queued payload and passes it to s.
func NewHandler(s Sender) queue.Handler {
	return func(ctx context.Context, queueName string, body []byte) error {
		m, err := Render(queueName, body)
		if err != nil {
			return err
		}
		return s.Send(ctx, m)
	}
}
