package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"live-quiz-service/internal/domain"
)

// DefaultSubject is where game lifecycle updates are published unless configured otherwise.
const DefaultSubject = "quiz.games.updated"

// Notifier publishes game lifecycle updates to a NATS subject for
// downstream reporting.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// Connect dials url and returns a notifier publishing to subject.
func Connect(url, subject string) (*Notifier, error) {
	nc, err := nats.Connect(url, nats.Name("live-quiz-service"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNotifier(nc, subject), nil
}

func NewNotifier(conn *nats.Conn, subject string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{conn: conn, subject: subject}
}

func (n *Notifier) GameUpdated(_ context.Context, update domain.GameUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
