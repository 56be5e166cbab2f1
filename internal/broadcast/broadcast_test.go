// internal/broadcast/broadcast_test.go
package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(p))
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestTopics(t *testing.T) {
	id := uuid.MustParse("7b1c4b52-3d47-4e3e-9a55-6f2d5c3e0a11")
	assert.Equal(t, "omi.room.7b1c4b52-3d47-4e3e-9a55-6f2d5c3e0a11", RoomTopic(id))
	assert.Equal(t, "omi.room.7b1c4b52-3d47-4e3e-9a55-6f2d5c3e0a11.seat.2", SeatTopic(id, 2))
}

func TestMemoryFanOutInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, b, other := &collector{}, &collector{}, &collector{}

	_, err := m.Subscribe(ctx, "room", a.handle)
	require.NoError(t, err)
	subB, err := m.Subscribe(ctx, "room", b.handle)
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, "room.seat.1", other.handle)
	require.NoError(t, err)

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, m.Publish(ctx, "room", []byte(p)))
	}
	assert.Equal(t, []string{"1", "2", "3"}, a.all())
	assert.Equal(t, []string{"1", "2", "3"}, b.all())
	assert.Empty(t, other.all(), "topics match exactly")

	require.NoError(t, subB.Unsubscribe())
	require.NoError(t, subB.Unsubscribe())
	require.NoError(t, m.Publish(ctx, "room", []byte("4")))
	assert.Len(t, a.all(), 4)
	assert.Len(t, b.all(), 3)
	assert.Equal(t, 1, m.Subscribers("room"))
}

func TestMemoryHandlerMayPublish(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	replies := &collector{}
	_, err := m.Subscribe(ctx, "reply", replies.handle)
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, "ask", func(p []byte) {
		_ = m.Publish(ctx, "reply", append([]byte("re:"), p...))
	})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "ask", []byte("x")))
	assert.Equal(t, []string{"re:x"}, replies.all())
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Publish(context.Background(), "t", nil), ErrClosed)
	_, err := m.Subscribe(context.Background(), "t", func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}

// Needs a local Redis; skipped otherwise.
func TestRedisPubSub(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	b := NewRedis(rdb, logrus.New())
	defer b.Close()
	got := &collector{}
	topic := RoomTopic(uuid.New())
	_, err := b.Subscribe(ctx, topic, got.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, topic, []byte("hello")))
	assert.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
