package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/taxosync/internal/eventstore"
)

// Envelope is the JSON document published for each event.
type Envelope struct {
	RunID     string            `json:"run_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NATSPublisher publishes sync events to a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to url and ensures a stream captures subject.
func NewNATSPublisher(ctx context.Context, url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("NATS subject is required")
	}

	conn, err := nats.Connect(url, nats.Name("taxosync-events"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        "TAXOSYNC_EVENTS",
		Description: "taxosync sync run events",
		Subjects:    []string{subject},
		MaxAge:      30 * 24 * time.Hour,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}

	slog.Info("NATS event publisher initialized", "url", url, "subject", subject)
	return &NATSPublisher{conn: conn, js: js, subject: subject}, nil
}

func (p *NATSPublisher) Emit(ctx context.Context, e eventstore.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(Envelope{
		RunID:     e.RunID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   json.RawMessage(e.Payload()),
		Metadata:  e.Metadata(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	slog.Debug("Published sync event", "run_id", e.RunID(), "type", e.Type())
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
