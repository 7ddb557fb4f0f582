// Package publish fans persisted position batches out to NATS subscribers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"adsb_history/internal/position"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "adsb"

// TickIDHeader carries the ingestion tick that produced a batch.
const TickIDHeader = "Tick-Id"

// Batch is one tick's persisted positions.
type Batch struct {
	TickID     string              `json:"-"`
	ObservedAt position.Timestamp  `json:"observed_at"`
	Aircraft   []position.Position `json:"aircraft"`
}

// NATSPublisher publishes batches to <prefix>.positions.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Subject returns the positions subject for prefix.
func Subject(prefix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".positions"
}

// NewNATSPublisher connects to url. Extra options are appended after the
// defaults.
func NewNATSPublisher(url, prefix string, logger *zap.Logger, opts ...nats.Option) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := []nats.Option{
		nats.Name("adsb-history"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{nc: nc, subject: Subject(prefix), logger: logger}, nil
}

// Publish sends b as one JSON message.
func (p *NATSPublisher) Publish(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := p.message(b)
	if err != nil {
		return err
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) message(b Batch) (*nats.Msg, error) {
	if b.Aircraft == nil {
		b.Aircraft = []position.Position{}
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if b.TickID != "" {
		msg.Header.Set(TickIDHeader, b.TickID)
	}
	return msg, nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
