// Package checkpoint provides crash-safe offset tracking for the import
// pipeline. Durable state (offset and total-rows snapshot) lives in a
// DurableStore written on shutdown; a fast in-memory counter tracks batches
// completed since the last durable write so the hot path never pays for a
// durable write per poll interval. Worst case on crash is reprocessing up to
// one unflushed batch, never silently skipping one.
package checkpoint

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/models"
)

// DurableStore persists cursor state across process restarts.
type DurableStore interface {
	// Load returns the persisted cursor, or nil when no checkpoint exists.
	Load(ctx context.Context) (*models.Cursor, error)
	// Save durably writes the cursor.
	Save(ctx context.Context, cursor *models.Cursor) error
}

// Checkpoint reconciles the durable cursor with the ephemeral batch counter.
type Checkpoint struct {
	store     DurableStore
	batchSize int64
	mode      models.ImportMode
	log       *zap.Logger

	mu            sync.Mutex
	loaded        bool
	initialOffset int64
	snapshot      *int64

	// counter tracks batches completed since the last durable write. It is
	// the only state the job runner touches per batch.
	counter atomic.Int64
}

// New creates a Checkpoint over the given durable store.
func New(store DurableStore, batchSize int64, mode models.ImportMode) *Checkpoint {
	return &Checkpoint{
		store:     store,
		batchSize: batchSize,
		mode:      mode,
		log:       logger.With(zap.String("component", "checkpoint")),
	}
}

// LoadInitialOffset reads the durably persisted offset (default 0). It must
// be called exactly once per process lifetime, before any batch runs.
func (c *Checkpoint) LoadInitialOffset(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return 0, errors.New(errors.ErrorTypeInternal, "initial offset already loaded")
	}

	cursor, err := c.store.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to load checkpoint")
	}

	if cursor != nil {
		c.initialOffset = cursor.Offset
		c.snapshot = cursor.TotalRowsSnapshot
	}
	c.loaded = true

	c.log.Info("checkpoint loaded",
		zap.Int64("initial_offset", c.initialOffset),
		zap.Bool("has_snapshot", c.snapshot != nil))

	return c.initialOffset, nil
}

// EphemeralIncrement atomically increments and returns the batch counter.
func (c *Checkpoint) EphemeralIncrement() int64 {
	return c.counter.Add(1)
}

// EffectiveOffset is the offset any fresh (non-retry) batch must use:
// initialOffset + batchesCompleted * batchSize.
func (c *Checkpoint) EffectiveOffset() int64 {
	c.mu.Lock()
	initial := c.initialOffset
	c.mu.Unlock()
	return initial + c.counter.Load()*c.batchSize
}

// TotalRowsSnapshot returns the historical watermark, if captured.
func (c *Checkpoint) TotalRowsSnapshot() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return 0, false
	}
	return *c.snapshot, true
}

// CaptureTotalRows records the total-rows snapshot once. Subsequent calls are
// no-ops so the watermark never moves after first successful startup. The
// snapshot is written through to the durable store immediately: losing it
// would unbound a historical import after a crash.
func (c *Checkpoint) CaptureTotalRows(ctx context.Context, total int64) error {
	c.mu.Lock()
	if c.snapshot != nil {
		c.mu.Unlock()
		return nil
	}
	c.snapshot = &total
	cursor := c.cursorLocked()
	c.mu.Unlock()

	if err := c.store.Save(ctx, cursor); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to persist total rows snapshot")
	}

	c.log.Info("total rows snapshot captured", zap.Int64("total_rows", total))
	return nil
}

// Persist durably writes the current effective offset. In historical mode the
// value is capped at the total-rows snapshot so a late overshoot never records
// an offset past the intended stopping point. Invoked on shutdown.
func (c *Checkpoint) Persist(ctx context.Context) error {
	c.mu.Lock()
	cursor := c.cursorLocked()
	c.mu.Unlock()

	if err := c.store.Save(ctx, cursor); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to persist checkpoint")
	}

	c.log.Info("checkpoint persisted", zap.Int64("offset", cursor.Offset))
	return nil
}

func (c *Checkpoint) cursorLocked() *models.Cursor {
	offset := c.initialOffset + c.counter.Load()*c.batchSize
	if c.mode == models.ModeHistorical && c.snapshot != nil && offset > *c.snapshot {
		offset = *c.snapshot
	}
	return &models.Cursor{
		Offset:            offset,
		TotalRowsSnapshot: c.snapshot,
		Mode:              c.mode,
	}
}
