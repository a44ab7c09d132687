// Package mail sends the account emails. The backend is chosen by
// EMAIL_BACKEND.
package mail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/mq"
	"github.com/rs/zerolog"
)

// Message is a plain-text email.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the backend named by cfg.Backend. The queue backend needs a
// publisher.
func New(cfg config.MailConfig, publisher mq.Publisher, log zerolog.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Backend) {
	case "console", "":
		return NewConsole(log, cfg.From), nil
	case "locmem":
		return NewOutbox(cfg.From), nil
	case "smtp":
		return NewSMTP(cfg), nil
	case "queue":
		if publisher == nil {
			return nil, fmt.Errorf("mail backend queue requires MQ_BACKEND")
		}
		return NewQueue(publisher, cfg.QueueChannel, cfg.From), nil
	default:
		return nil, fmt.Errorf("unsupported email backend: %q", cfg.Backend)
	}
}

func withDefaultFrom(msg Message, from string) Message {
	if msg.From == "" {
		msg.From = from
	}
	return msg
}

// Console writes messages to the log instead of delivering them.
type Console struct {
	log  zerolog.Logger
	from string
}

func NewConsole(log zerolog.Logger, from string) *Console {
	return &Console{log: log.With().Str("component", "mail").Logger(), from: from}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	msg = withDefaultFrom(msg, c.from)
	c.log.Info().
		Str("from", msg.From).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email")
	// The body carries verification keys; it is only written at debug level.
	c.log.Debug().
		Strs("to", msg.To).
		Str("body", msg.Body).
		Msg("email body")
	return nil
}

// Outbox keeps sent messages in memory.
type Outbox struct {
	mu       sync.Mutex
	from     string
	messages []Message
}

func NewOutbox(from string) *Outbox {
	return &Outbox{from: from}
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, withDefaultFrom(msg, o.from))
	return nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Queue hands messages to an external relay through the message queue.
type Queue struct {
	publisher mq.Publisher
	channel   string
	from      string
}

func NewQueue(publisher mq.Publisher, channel, from string) *Queue {
	return &Queue{publisher: publisher, channel: channel, from: from}
}

func (q *Queue) Send(ctx context.Context, msg Message) error {
	_, err := mq.PublishJSON(ctx, q.publisher, q.channel, withDefaultFrom(msg, q.from), map[string]string{"event": "mail.send"})
	if err != nil {
		return fmt.Errorf("queue mail: %w", err)
	}
	return nil
}
