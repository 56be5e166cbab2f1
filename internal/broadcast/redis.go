// internal/broadcast/redis.go
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis carries room traffic over Redis Pub/Sub.
type Redis struct {
	rdb    *redis.Client
	logger *logrus.Entry

	mu     sync.Mutex
	subs   map[*redisSub]struct{}
	closed bool
}

// NewRedis uses rdb for both publishing and subscriptions.
func NewRedis(rdb *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		logger: logger.WithField("component", "redis_pubsub"),
		subs:   make(map[*redisSub]struct{}),
	}
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := r.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ps := r.rdb.Subscribe(ctx, topic)
	// Wait for the subscribe confirmation so the caller does not miss
	// anything published right after.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSub{ps: ps, owner: r, done: make(chan struct{})}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			h([]byte(msg.Payload))
		}
		r.logger.Debugf("subscription to %s ended", topic)
	}()
	return sub, nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	subs := make([]*redisSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type redisSub struct {
	ps    *redis.PubSub
	owner *Redis
	done  chan struct{}
	once  sync.Once
	err   error
}

func (s *redisSub) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
	return s.err
}
