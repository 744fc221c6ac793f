package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prudhvinik1/caresync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioBatch = []byte{2, 0, 10, 0, 0, 0, 1, 20, 0, 0, 0}

func newTestEngine(t *testing.T) (*SyncEngine, *countingStore, *ResetState) {
	t.Helper()
	store := newCountingStore()
	state := &ResetState{}
	engine := NewSyncEngine(store, state, testLogger())
	require.NoError(t, engine.Start(context.Background()))
	return engine, store, state
}

func TestSyncEngine_RegisterIsIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	event := models.Event{Type: models.EventFeed, Timestamp: 10}

	assert.True(t, engine.Register(event))
	assert.False(t, engine.Register(event))
	assert.Equal(t, []models.Event{event}, engine.Events())
}

func TestSyncEngine_SameTimestampDifferentTypes(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	assert.True(t, engine.Register(models.Event{Type: models.EventSleepStart, Timestamp: 10}))
	assert.True(t, engine.Register(models.Event{Type: models.EventSleepStop, Timestamp: 10}))
	assert.Len(t, engine.Events(), 2)
}

func TestSyncEngine_IngestScenarioTwice(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 2, Added: 2}, first)

	second, err := engine.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 2, Added: 0}, second)

	assert.Len(t, store.appends, 2, "duplicates must not be persisted")
	assert.Equal(t, []models.Event{
		{Type: models.EventFeed, Timestamp: 10},
		{Type: models.EventDiaperChange, Timestamp: 20},
	}, engine.Events())

	snapshot := store.Snapshot()
	assert.Equal(t, []uint32{10}, snapshot[models.EventFeed])
	assert.Equal(t, []uint32{20}, snapshot[models.EventDiaperChange])
}

func TestSyncEngine_DuplicateWithinOneBatch(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	event := models.Event{Type: models.EventFeed, Timestamp: 7}

	result, err := engine.IngestBatch(context.Background(), mustBatch(t, encodeBatch(t, event, event)))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 1, result.Added)
	assert.Len(t, store.appends, 1)
}

func TestSyncEngine_SkipsUnknownTypes(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	buf := []byte{3, 0, 1, 0, 0, 0, 9, 2, 0, 0, 0, 3, 3, 0, 0, 0}

	result, err := engine.IngestBatch(context.Background(), mustBatch(t, buf))
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Received: 3, Added: 2, Skipped: 1}, result)
	assert.Equal(t, []models.Event{
		{Type: models.EventFeed, Timestamp: 1},
		{Type: models.EventSleepStop, Timestamp: 3},
	}, engine.Events())
}

func TestSyncEngine_OutOfOrderTimestamps(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	for _, timestamp := range []uint32{100, 50, 75} {
		batch := mustBatch(t, encodeBatch(t, models.Event{Type: models.EventDiaperChange, Timestamp: timestamp}))
		result, err := engine.IngestBatch(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Added)
	}

	assert.Equal(t, []uint32{100, 50, 75}, store.Snapshot()[models.EventDiaperChange])
	assert.Equal(t, []uint32{100, 50, 75}, engine.Export()[models.EventDiaperChange])
}

func TestSyncEngine_RestartDoesNotRepersist(t *testing.T) {
	engine, store, state := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	require.Len(t, store.appends, 2)

	// Same persisted data, fresh process.
	restarted := NewSyncEngine(store, state, testLogger())
	require.NoError(t, restarted.Start(ctx))
	assert.Len(t, store.appends, 2, "startup must not append")
	assert.ElementsMatch(t, engine.Events(), restarted.Events())

	result, err := restarted.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Len(t, store.appends, 2)
}

func TestSyncEngine_DiscardsWhileResetPending(t *testing.T) {
	engine, store, state := newTestEngine(t)
	state.pending.Store(true)

	result, err := engine.IngestBatch(context.Background(), mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	assert.True(t, result.Discarded)
	assert.Equal(t, 0, result.Added)
	assert.Empty(t, store.appends)
	assert.Empty(t, engine.Events())
}

func TestSyncEngine_AppendFailureRollsBackIndex(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	store.failAppend = func(event models.Event) error {
		if event.Type == models.EventDiaperChange {
			return errors.New("write failed")
		}
		return nil
	}

	result, err := engine.IngestBatch(context.Background(), mustBatch(t, scenarioBatch))
	require.Error(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, []models.Event{{Type: models.EventFeed, Timestamp: 10}}, engine.Events())

	// The failed event is not known, so a resend admits it.
	store.failAppend = nil
	result, err = engine.IngestBatch(context.Background(), mustBatch(t, scenarioBatch))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
}

func TestSyncEngine_Wipe(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)

	require.NoError(t, engine.Wipe(ctx))
	assert.Empty(t, engine.Events())
	for _, eventType := range models.EventTypes {
		assert.Empty(t, store.Snapshot()[eventType])
	}

	// Previously seen events are new again after a wipe.
	assert.True(t, engine.Register(models.Event{Type: models.EventFeed, Timestamp: 10}))
}

func TestSyncEngine_WipeFailureKeepsIndex(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.IngestBatch(ctx, mustBatch(t, scenarioBatch))
	require.NoError(t, err)

	store.failClear = errors.New("unavailable")
	require.Error(t, engine.Wipe(ctx))
	assert.Len(t, engine.Events(), 2)
}

func TestSyncEngine_ExportAndLatest(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	batch := encodeBatch(t,
		models.Event{Type: models.EventFeed, Timestamp: 300},
		models.Event{Type: models.EventSleepStart, Timestamp: 100},
		models.Event{Type: models.EventFeed, Timestamp: 200},
	)
	_, err := engine.IngestBatch(ctx, mustBatch(t, batch))
	require.NoError(t, err)

	export := engine.Export()
	assert.Equal(t, []uint32{300, 200}, export[models.EventFeed])
	assert.Equal(t, []uint32{100}, export[models.EventSleepStart])
	assert.Equal(t, []uint32{}, export[models.EventDiaperChange])

	// Export is a copy.
	export[models.EventFeed][0] = 1
	assert.Equal(t, []uint32{300, 200}, engine.Export()[models.EventFeed])

	assert.Equal(t, map[models.EventType]uint32{
		models.EventFeed:       300,
		models.EventSleepStart: 100,
	}, engine.Latest())
}
