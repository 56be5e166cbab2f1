// internal/historian/historian.go pops action records from the Redis queue
// and persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink is where flushed batches go.
type Sink interface {
	InsertActions(ctx context.Context, recs []cache.GameActionRecord) error
	MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a game may go without actions before it is
	// marked abandoned.
	Inactivity time.Duration
	// SweepEvery is the inactivity check period.
	SweepEvery time.Duration
	PopTimeout time.Duration
}

// Service batches records popped from one queue.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	opts   Options
	logger *logrus.Logger

	lastActivity sync.Map // uuid.UUID -> time.Time

	batchMu sync.Mutex
	batch   []cache.GameActionRecord
}

func New(rdb *redis.Client, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if opts.Queue == "" {
		opts.Queue = cache.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	return &Service{
		rdb:    rdb,
		sink:   sink,
		opts:   opts,
		logger: logger,
		batch:  make([]cache.GameActionRecord, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled, then flushes what is left.
func (hs *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); hs.readLoop(ctx) }()
	go func() { defer wg.Done(); hs.flushLoop(ctx) }()
	go func() { defer wg.Done(); hs.inactivityLoop(ctx) }()

	hs.logger.Infof("historian started on queue %s", hs.opts.Queue)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Flush(flushCtx)
	hs.logger.Info("historian stopped")
}

func (hs *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := hs.rdb.BLPop(ctx, hs.opts.PopTimeout, hs.opts.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			hs.logger.Errorf("BLPop: %v", err)
			time.Sleep(hs.opts.PopTimeout / 3)
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		hs.Handle(ctx, []byte(res[1]))
	}
}

// Handle decodes one payload and adds it to the batch, flushing when the
// batch is full.
func (hs *Service) Handle(ctx context.Context, payload []byte) {
	var rec cache.GameActionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		hs.logger.Warnf("invalid action record: %v", err)
		return
	}
	hs.lastActivity.Store(rec.GameID, time.Now())

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.opts.BatchSize
	hs.batchMu.Unlock()

	if full {
		hs.Flush(ctx)
	}
}

func (hs *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(hs.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Flush(ctx)
		}
	}
}

// Flush writes the pending batch. A failed batch is put back in front of
// records that arrived meanwhile.
func (hs *Service) Flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := hs.batch
	hs.batch = make([]cache.GameActionRecord, 0, hs.opts.BatchSize)
	hs.batchMu.Unlock()

	if err := hs.sink.InsertActions(ctx, pending); err != nil {
		hs.logger.Errorf("flush %d actions: %v", len(pending), err)
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return
	}
	hs.logger.Debugf("flushed %d actions", len(pending))
}

// Pending is the number of records not yet flushed.
func (hs *Service) Pending() int {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	return len(hs.batch)
}

func (hs *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(hs.opts.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hs.Sweep(ctx, now)
		}
	}
}

// Sweep marks every game idle for longer than the inactivity window as
// abandoned and stops tracking it.
func (hs *Service) Sweep(ctx context.Context, now time.Time) {
	hs.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= hs.opts.Inactivity {
			return true
		}
		hs.lastActivity.Delete(gameID)
		changed, err := hs.sink.MarkGameAbandoned(ctx, gameID)
		if err != nil {
			hs.logger.Warnf("failed to mark game %s abandoned: %v", gameID, err)
			return true
		}
		if changed {
			hs.logger.Infof("marked game %s abandoned after inactivity", gameID)
		}
		return true
	})
}

// DatabaseSink writes through the shared database pool.
type DatabaseSink struct{}

func (DatabaseSink) InsertActions(ctx context.Context, recs []cache.GameActionRecord) error {
	return database.InsertActions(ctx, recs)
}

func (DatabaseSink) MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	return database.MarkGameAbandoned(ctx, gameID)
}
