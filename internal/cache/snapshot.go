// internal/cache/snapshot.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned when a room has nothing stored.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the latest shared state of a room, kept so late joiners can
// catch up without anyone answering a resync.
type Snapshot struct {
	Version uint64          `json:"stateVersion"`
	Data    json.RawMessage `json:"data"`
}

// SnapshotStore is the durable key-value store for room snapshots. Save
// never replaces a newer snapshot with an older one.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, room uuid.UUID, snap Snapshot) error
	LoadSnapshot(ctx context.Context, room uuid.UUID) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, room uuid.UUID) error
}

// MemoryStore keeps snapshots in process.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[uuid.UUID]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[uuid.UUID]Snapshot)}
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, room uuid.UUID, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.snaps[room]; ok && cur.Version > snap.Version {
		return nil
	}
	data := make(json.RawMessage, len(snap.Data))
	copy(data, snap.Data)
	m.snaps[room] = Snapshot{Version: snap.Version, Data: data}
	return nil
}

func (m *MemoryStore) LoadSnapshot(_ context.Context, room uuid.UUID) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[room]
	if !ok {
		return Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

func (m *MemoryStore) DeleteSnapshot(_ context.Context, room uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, room)
	return nil
}

// saveIfNewer writes KEYS[1] only if it is absent or holds a lower version.
var saveIfNewer = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "v")
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "v", ARGV[1], "d", ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// RedisStore keeps each room's snapshot in a hash with a TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore expires snapshots ttl after the last save; zero keeps them.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func snapshotKey(room uuid.UUID) string {
	return "omi:snapshot:" + room.String()
}

func (r *RedisStore) SaveSnapshot(ctx context.Context, room uuid.UUID, snap Snapshot) error {
	err := saveIfNewer.Run(ctx, r.rdb,
		[]string{snapshotKey(room)},
		snap.Version, string(snap.Data), r.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save snapshot for room %s: %w", room, err)
	}
	return nil
}

func (r *RedisStore) LoadSnapshot(ctx context.Context, room uuid.UUID) (Snapshot, error) {
	vals, err := r.rdb.HMGet(ctx, snapshotKey(room), "v", "d").Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot for room %s: %w", room, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	var version uint64
	if _, err := fmt.Sscan(vals[0].(string), &version); err != nil {
		return Snapshot{}, fmt.Errorf("bad snapshot version for room %s: %w", room, err)
	}
	return Snapshot{Version: version, Data: json.RawMessage(vals[1].(string))}, nil
}

func (r *RedisStore) DeleteSnapshot(ctx context.Context, room uuid.UUID) error {
	if err := r.rdb.Del(ctx, snapshotKey(room)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot for room %s: %w", room, err)
	}
	return nil
}
