// Package syncbus keeps the shared speech state consistent across running
// contexts. One context owns the persisted state and answers queries; every
// other context mirrors it by listening for change broadcasts.
package syncbus

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// Subjects for state synchronization. Members read with a request on
// SubjectGet, mutate with a request on SubjectSet, and hear about every
// accepted change on SubjectChanged.
const (
	SubjectGet     = "hearsay.state.get"
	SubjectSet     = "hearsay.state.set"
	SubjectChanged = "hearsay.state.changed"
)

// DefaultRequestTimeout bounds owner round-trips.
const DefaultRequestTimeout = 2 * time.Second

// Handler receives broadcast messages.
type Handler func(data []byte)

// RequestHandler answers request/reply messages.
type RequestHandler func(data []byte) ([]byte, error)

// Subscription is a cancellable message registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport the sync protocol runs over.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Request(subject string, data []byte, timeout time.Duration) ([]byte, error)
	Respond(subject string, h RequestHandler) (Subscription, error)
	Close()
}

// Config holds connection settings for the NATS-backed bus.
type Config struct {
	URL            string        `yaml:"url" env:"HEARSAY_BUS_URL" envDefault:"nats://127.0.0.1:4222"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"HEARSAY_BUS_CONNECT_TIMEOUT" envDefault:"3s"`
	Embedded       bool          `yaml:"embedded" env:"HEARSAY_BUS_EMBEDDED" envDefault:"false"`
	EmbeddedPort   int           `yaml:"embedded_port" env:"HEARSAY_BUS_EMBEDDED_PORT" envDefault:"4222"`
}

// ParseConfig loads bus settings from the environment layered over
// defaults.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse bus configuration: %w", err)
	}
	return cfg, nil
}

// NATSBus implements Bus over a NATS connection.
type NATSBus struct {
	conn   *nats.Conn
	logger *log.Logger
}

var _ Bus = (*NATSBus)(nil)

// Connect dials the configured NATS server.
func Connect(cfg Config, logger *log.Logger) (*NATSBus, error) {
	options := []nats.Option{
		nats.Name("hearsay"),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Debug("connected to sync bus", "url", cfg.URL)
	return &NATSBus{conn: conn, logger: logger}, nil
}

// Publish implements Bus.
func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(subject string, h Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Request implements Bus.
func (b *NATSBus) Request(subject string, data []byte, timeout time.Duration) ([]byte, error) {
	msg, err := b.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Respond implements Bus. Handler errors drop the reply; the requester's
// timeout is the error signal, same as an absent owner.
func (b *NATSBus) Respond(subject string, h RequestHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		reply, err := h(msg.Data)
		if err != nil {
			b.logger.Warn("sync request failed", "subject", subject, "err", err)
			return
		}
		if err := msg.Respond(reply); err != nil {
			b.logger.Warn("sync reply failed", "subject", subject, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("respond %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains in-flight messages before disconnecting.
func (b *NATSBus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	_ = b.conn.Drain()
	b.conn.Close()
}
