package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/kptumpala/inkpost/internal/config"
)

// ErrQueueFull is returned by Enqueue when the outbound queue is saturated.
var ErrQueueFull = errors.New("mail queue full")

// Message is one contact-form submission. Ref correlates log lines with the
// delivered mail.
type Message struct {
	Ref   string
	Name  string
	Email string
	Phone string
	Body  string
}

// Text renders the plain-text mail body.
func (m Message) Text() string {
	return fmt.Sprintf("Contact_Me\n\n Name: %s\n\n Email: %s\n\n Phone: %s\n\n Message: %s",
		m.Name, m.Email, m.Phone, m.Body)
}

// Sender delivers a single message. The SMTP implementation is swapped for a
// fake in tests.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender talks to the relay over STARTTLS with authentication.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return err
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.Username); err != nil {
		return err
	}
	if err := m.To(s.cfg.To); err != nil {
		return err
	}
	m.Subject("Contact form submission [" + msg.Ref + "]")
	m.SetBodyString(gomail.TypeTextPlain, msg.Text())

	return client.DialAndSendWithContext(ctx, m)
}

// Mailer owns the outbound queue so a slow relay never blocks a request
// worker. Delivery is at-most-queued: a message that exhausts its attempts is
// logged and dropped.
type Mailer struct {
	sender   Sender
	queue    chan Message
	done     chan struct{}
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

func NewMailer(sender Sender, queueSize int) *Mailer {
	return &Mailer{
		sender:   sender,
		queue:    make(chan Message, queueSize),
		done:     make(chan struct{}),
		attempts: 3,
		backoff:  500 * time.Millisecond,
		timeout:  10 * time.Second,
	}
}

// Enqueue accepts a message for delivery without blocking.
func (m *Mailer) Enqueue(msg Message) error {
	select {
	case m.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the queue; call it in its own goroutine.
func (m *Mailer) Run() {
	defer close(m.done)
	for msg := range m.queue {
		m.deliver(msg)
	}
}

// Close stops accepting work and waits for the queue to drain.
func (m *Mailer) Close() {
	close(m.queue)
	<-m.done
}

func (m *Mailer) deliver(msg Message) {
	for attempt := 1; attempt <= m.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := m.sender.Send(ctx, msg)
		cancel()
		if err == nil {
			log.Printf("mail sent ref=%s to contact address", msg.Ref)
			return
		}
		log.Printf("mail send ref=%s attempt=%d err=%v", msg.Ref, attempt, err)
		if attempt < m.attempts {
			time.Sleep(m.backoff * time.Duration(1<<(attempt-1)))
		}
	}
	log.Printf("mail dropped ref=%s after %d attempts", msg.Ref, m.attempts)
}
