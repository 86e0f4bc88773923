package alertlog

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// DefaultSubject is the NATS subject alerts are published on.
const DefaultSubject = "exfil.alerts"

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher fans alerts out as JSON Payload messages.
type NATSPublisher struct {
	conn    conn
	subject string
}

// NewNATSPublisher connects to url and publishes on subject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("exfild"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", url, err)
	}
	return newPublisher(nc, subject), nil
}

func newPublisher(c conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: c, subject: subject}
}

// Subject returns the subject messages are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish sends rec as a JSON Payload.
func (p *NATSPublisher) Publish(rec domain.AlertRecord) error {
	data, err := json.Marshal(NewPayload(rec))
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn.Close()
	return err
}
