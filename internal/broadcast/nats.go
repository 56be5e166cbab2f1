// internal/broadcast/nats.go
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATS publishes room traffic as NATS core subjects. Core NATS is
// at-most-once with per-publisher ordering, which is what the room needs.
type NATS struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// ConnectNATS dials url with reconnect handling and returns a broadcaster
// owning the connection.
func ConnectNATS(url string, logger *logrus.Logger) (*NATS, error) {
	entry := logger.WithField("component", "nats")
	opts := []nats.Option{
		nats.Name("omi"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.Warnf("disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.Infof("reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			entry.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATS{conn: conn, logger: entry}, nil
}

func (n *NATS) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.conn.IsClosed() {
		return ErrClosed
	}
	if err := n.conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := n.conn.Subscribe(topic, func(m *nats.Msg) {
		h(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	// Make sure the server has the interest before returning, so a publish
	// right after Subscribe is not lost.
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription to %s: %w", topic, err)
	}
	return sub, nil
}

func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
