package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-io/snowcap/pkg/checkpoint"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
	"github.com/crestline-io/snowcap/pkg/sink"
	"github.com/crestline-io/snowcap/pkg/testutil"
)

// fakeExecutor scripts query results per offset and records the offsets it
// was asked for.
type fakeExecutor struct {
	mu      sync.Mutex
	respond func(offset int64) ([]*models.RawRow, error)
	offsets []int64
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, args ...interface{}) ([]*models.RawRow, error) {
	offset := args[0].(int64)

	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()

	return f.respond(offset)
}

func (f *fakeExecutor) seenOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.offsets))
	copy(out, f.offsets)
	return out
}

// stubStrategy emits one event per row, or fails every row.
type stubStrategy struct {
	fail bool
}

func (s stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Transform(row *models.RawRow) (*models.Event, error) {
	if s.fail {
		return nil, errors.New(errors.ErrorTypeTransform, "bad mapping")
	}
	name, _ := row.Values["event"].(string)
	return &models.Event{Name: name, Properties: map[string]interface{}{}}, nil
}

func testRows(n int) []*models.RawRow {
	rows := make([]*models.RawRow, n)
	for i := range rows {
		row := models.NewRawRow([]string{"event"})
		row.Values["event"] = "e"
		rows[i] = row
	}
	return rows
}

func newCheckpoint(t *testing.T, batchSize int64, mode models.ImportMode) *checkpoint.Checkpoint {
	t.Helper()
	store := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	cp := checkpoint.New(store, batchSize, mode)
	_, err := cp.LoadInitialOffset(context.Background())
	require.NoError(t, err)
	return cp
}

func newTestRunner(t *testing.T, exec *fakeExecutor, cp *checkpoint.Checkpoint, mode models.ImportMode, strategy stubStrategy) (*Runner, *sink.Memory) {
	t.Helper()
	memory := sink.NewMemory()
	r := New(exec, cp, strategy, memory, Options{
		Table:     "EVENTS",
		OrderBy:   "ID",
		BatchSize: 10,
		Interval:  time.Millisecond,
		Mode:      mode,
	})
	return r, memory
}

func TestBackoffDelays(t *testing.T) {
	expected := 3 * time.Second
	for n := 0; n < 15; n++ {
		assert.Equal(t, expected, backoffDelay(n), "attempt %d", n)
		expected *= 2
	}
}

func TestRunOnceSuccessAdvancesCheckpoint(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return testRows(10), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, memory := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	result, err := r.runOnce(context.Background(), models.RetryState{})
	require.NoError(t, err)

	assert.Equal(t, outcomeSuccess, result.outcome)
	assert.Len(t, memory.Events(), 10)
	assert.Equal(t, []int64{0}, exec.seenOffsets())
	assert.Equal(t, int64(10), cp.EffectiveOffset())
}

func TestRunOnceEmptyBatchDoesNotAdvance(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, memory := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	result, err := r.runOnce(context.Background(), models.RetryState{})
	require.NoError(t, err)

	assert.Equal(t, outcomeSuccess, result.outcome)
	assert.Empty(t, memory.Events())
	// Nothing was fetched at this window, so the same window is polled again.
	assert.Equal(t, int64(0), cp.EffectiveOffset())
}

func TestRunOnceFetchFailureSchedulesBackoff(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, errors.New(errors.ErrorTypeQuery, "warehouse suspended")
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})
	ctx := context.Background()

	result, err := r.runOnce(ctx, models.RetryState{})
	require.NoError(t, err)
	assert.Equal(t, outcomeRetry, result.outcome)
	assert.Equal(t, 3*time.Second, result.delay)
	assert.Equal(t, 1, result.next.AttemptsSoFar)
	require.NotNil(t, result.next.Offset)
	assert.Equal(t, int64(0), *result.next.Offset)

	// Second failure at the same pinned window doubles the delay.
	result, err = r.runOnce(ctx, result.next)
	require.NoError(t, err)
	assert.Equal(t, outcomeRetry, result.outcome)
	assert.Equal(t, 6*time.Second, result.delay)
	assert.Equal(t, 2, result.next.AttemptsSoFar)

	// The checkpoint never moved.
	assert.Equal(t, int64(0), cp.EffectiveOffset())
	assert.Equal(t, []int64{0, 0}, exec.seenOffsets())
}

func TestRunOnceRetryReusesPinnedOffset(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return testRows(3), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	pinned := int64(40)
	result, err := r.runOnce(context.Background(), models.RetryState{AttemptsSoFar: 2, Offset: &pinned})
	require.NoError(t, err)

	assert.Equal(t, outcomeSuccess, result.outcome)
	assert.Equal(t, []int64{40}, exec.seenOffsets())
}

func TestRunOnceAbandonsAtRetryCeiling(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		t.Fatal("abandoned batch must not fetch")
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	pinned := int64(70)
	result, err := r.runOnce(context.Background(), models.RetryState{AttemptsSoFar: 15, Offset: &pinned})
	require.NoError(t, err)

	assert.Equal(t, outcomeAbandoned, result.outcome)
	// The checkpoint does not advance past the abandoned window.
	assert.Equal(t, int64(0), cp.EffectiveOffset())
}

func TestRunOnceNonTransientFetchErrorIsFatal(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, errors.New(errors.ErrorTypeData, "failed to scan row")
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	_, err := r.runOnce(context.Background(), models.RetryState{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, int64(0), cp.EffectiveOffset())
}

func TestRunOnceHistoricalTermination(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		t.Fatal("terminated import must not fetch")
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeHistorical)
	require.NoError(t, cp.CaptureTotalRows(context.Background(), 5))
	cp.EphemeralIncrement() // effective offset 10, past the watermark

	r, _ := newTestRunner(t, exec, cp, models.ModeHistorical, stubStrategy{})

	result, err := r.runOnce(context.Background(), models.RetryState{})
	require.NoError(t, err)
	assert.Equal(t, outcomeTerminated, result.outcome)
}

func TestRunOnceHistoricalEmptyFetchTerminates(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeHistorical)
	require.NoError(t, cp.CaptureTotalRows(context.Background(), 20))
	cp.EphemeralIncrement()
	cp.EphemeralIncrement() // effective offset 20, exactly at the watermark

	r, _ := newTestRunner(t, exec, cp, models.ModeHistorical, stubStrategy{})

	result, err := r.runOnce(context.Background(), models.RetryState{})
	require.NoError(t, err)
	assert.Equal(t, outcomeTerminated, result.outcome)
	assert.Equal(t, []int64{20}, exec.seenOffsets())
}

func TestRunOnceTransformFailureIsFatal(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return testRows(1), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{fail: true})

	_, err := r.runOnce(context.Background(), models.RetryState{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransform))
	// A failed batch never advances the checkpoint.
	assert.Equal(t, int64(0), cp.EffectiveOffset())
}

func TestRunLoopContiguousWindows(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return testRows(10), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	testutil.AssertEventually(t, func() bool {
		return len(exec.seenOffsets()) >= 4
	}, 5*time.Second, "runner did not complete 4 batches")

	cancel()
	require.NoError(t, <-done)

	offsets := exec.seenOffsets()
	for i := 1; i < len(offsets); i++ {
		assert.Equal(t, offsets[i-1]+10, offsets[i], "gap or overlap between windows %d and %d", i-1, i)
	}
}

func TestRunLoopHistoricalStopsAtWatermark(t *testing.T) {
	exec := &fakeExecutor{respond: func(offset int64) ([]*models.RawRow, error) {
		if offset >= 15 {
			return nil, nil
		}
		n := 10
		if offset == 10 {
			n = 5
		}
		return testRows(n), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeHistorical)
	require.NoError(t, cp.CaptureTotalRows(context.Background(), 15))
	r, memory := newTestRunner(t, exec, cp, models.ModeHistorical, stubStrategy{})

	err := r.Run(context.Background())
	require.NoError(t, err)

	// Windows [0,10) and [10,20) run; the next offset 20 exceeds the
	// watermark of 15 and the import terminates with no further fetches.
	assert.Equal(t, []int64{0, 10}, exec.seenOffsets())
	assert.Len(t, memory.Events(), 15)
}

func TestRunLoopHistoricalExactMultipleTerminates(t *testing.T) {
	exec := &fakeExecutor{respond: func(offset int64) ([]*models.RawRow, error) {
		if offset >= 20 {
			return nil, nil
		}
		return testRows(10), nil
	}}
	cp := newCheckpoint(t, 10, models.ModeHistorical)
	require.NoError(t, cp.CaptureTotalRows(context.Background(), 20))
	r, memory := newTestRunner(t, exec, cp, models.ModeHistorical, stubStrategy{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("historical import with a watermark at an exact batch-size multiple never terminated")
	}

	// The window [20, 30) sits at the watermark and fetches empty; that
	// empty fetch must end the import instead of re-polling forever.
	assert.Equal(t, []int64{0, 10, 20}, exec.seenOffsets())
	assert.Len(t, memory.Events(), 20)
}

func TestRunLoopHistoricalEmptyTableTerminates(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeHistorical)
	require.NoError(t, cp.CaptureTotalRows(context.Background(), 0))
	r, memory := newTestRunner(t, exec, cp, models.ModeHistorical, stubStrategy{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("historical import of an empty table never terminated")
	}

	assert.Equal(t, []int64{0}, exec.seenOffsets())
	assert.Empty(t, memory.Events())
}

func TestRunLoopAbandonedHaltsPipeline(t *testing.T) {
	exec := &fakeExecutor{respond: func(int64) ([]*models.RawRow, error) {
		return nil, nil
	}}
	cp := newCheckpoint(t, 10, models.ModeContinuous)
	r, _ := newTestRunner(t, exec, cp, models.ModeContinuous, stubStrategy{})

	// Drive the state machine to the ceiling by hand; the loop-level
	// behavior for the terminal transition is what matters here.
	pinned := int64(0)
	result, err := r.runOnce(context.Background(), models.RetryState{AttemptsSoFar: maxAttempts, Offset: &pinned})
	require.NoError(t, err)
	require.Equal(t, outcomeAbandoned, result.outcome)
}
