package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/carbonmrv/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// Envelope is the wire format of every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	RequestID  string          `json:"request_id,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := Encode(ctx, subject, data)
	if err != nil {
		return err
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Ping() error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("nats connection status %s", n.conn.Status())
	}
	return nil
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// Encode wraps data in an Envelope and marshals it.
func Encode(ctx context.Context, subject string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		env.RequestID = rid
	}

	return json.Marshal(env)
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, subject string, _ interface{}) error {
	logger.DebugContext(ctx, "Event bus disabled, dropping event", "subject", subject)
	return nil
}

func (NopPublisher) Close() error { return nil }

const (
	FarmerRegistered     = "farmer.registered"
	FarmerProfileUpdated = "farmer.profile_updated"
	FarmerStatusChanged  = "farmer.status_changed"
	SessionCreated       = "auth.session.created"
	SessionRevoked       = "auth.session.revoked"
)

type FarmerRegisteredEvent struct {
	FarmerID        string    `json:"farmer_id"`
	Email           string    `json:"email"`
	Method          string    `json:"method"` // otp or password
	EstimatedIncome int64     `json:"estimated_income"`
	CreatedAt       time.Time `json:"created_at"`
}

type FarmerProfileUpdatedEvent struct {
	FarmerID        string    `json:"farmer_id"`
	Changes         []string  `json:"changes"`
	EstimatedIncome int64     `json:"estimated_income"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type FarmerStatusChangedEvent struct {
	FarmerID  string    `json:"farmer_id"`
	Status    string    `json:"status"`
	Verified  bool      `json:"verified"`
	ChangedBy string    `json:"changed_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SessionEvent struct {
	UserID   string    `json:"user_id"`
	UserType string    `json:"user_type"`
	At       time.Time `json:"at"`
}
