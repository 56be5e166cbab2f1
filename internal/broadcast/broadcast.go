// internal/broadcast/broadcast.go
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Handler receives one delivered payload. Delivery is at-most-once.
type Handler func(payload []byte)

// Subscription is a live registration on one topic.
type Subscription interface {
	Unsubscribe() error
}

// Broadcaster is a publish/subscribe channel keyed by topic. Ordering is
// only guaranteed for one publisher on one topic.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
	Close() error
}

// ErrClosed is returned by a broadcaster after Close.
var ErrClosed = errors.New("broadcaster closed")

// RoomTopic is the shared topic every client of a room listens on.
func RoomTopic(room uuid.UUID) string {
	return "omi.room." + room.String()
}

// SeatTopic carries the private hand of one seat.
func SeatTopic(room uuid.UUID, seat int) string {
	return fmt.Sprintf("omi.room.%s.seat.%d", room, seat)
}
