package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// Connect dials NATS with reconnects enabled; the connection keeps retrying
// in the background when the server is not reachable yet.
func Connect(url, name string, logger *logrus.Entry) (*NATSPublisher, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("nats disconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.WithError(err).Error("nats error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(event.Type, data)
}

func (p *NATSPublisher) IsConnected() bool {
	return p.conn.IsConnected()
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Logged wraps a publisher so failures are logged and never surface to callers.
type Logged struct {
	Next   Publisher
	Logger *logrus.Entry
}

func (l Logged) Publish(ctx context.Context, event Event) error {
	if err := l.Next.Publish(ctx, event); err != nil && l.Logger != nil {
		l.Logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"product_id": event.ProductID,
		}).Warn("event publish failed")
	}
	return nil
}

func (l Logged) Close() { l.Next.Close() }
