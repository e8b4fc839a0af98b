// Package queue carries transactional email over RabbitMQ.  The API side
// publishes typed payloads with Publisher; the mailer worker drains the
// same queues with Consumer.
package queue

import amqp "github.com/rabbitmq/amqp091-go"

// Durable queues, one per email kind plus a generic one.
const (
	QueueEmail               = "email_queue"
	QueueVerification        = "verification_email_queue"
	QueuePasswordReset       = "password_reset_email_queue"
	QueueRegistrationSuccess = "registration_success_email_queue"
)

// EmailQueues lists every queue declared on connect.
var EmailQueues = []string{QueueEmail, QueueVerification, QueuePasswordReset, QueueRegistrationSuccess}

// EmailMessage is a pre-rendered message for QueueEmail.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

// VerificationEmail asks the user to confirm their address.
type VerificationEmail struct {
	To       string `json:"to"`
	UserName string `json:"user_name"`
	Token    string `json:"token"`
	Link     string `json:"link"`
}

// PasswordResetEmail carries a single-purpose reset link.
type PasswordResetEmail struct {
	To               string `json:"to"`
	UserName         string `json:"user_name"`
	Token            string `json:"token"`
	Link             string `json:"link"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// RegistrationSuccessEmail is sent once the address is verified.
type RegistrationSuccessEmail struct {
	To       string `json:"to"`
	UserName string `json:"user_name"`
}

type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// declareQueues is idempotent; durable so messages survive broker restarts.
func declareQueues(ch queueDeclarer) error {
	for _, name := range EmailQueues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}
