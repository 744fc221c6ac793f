package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prudhvinik1/caresync/internal/codec"
	"github.com/prudhvinik1/caresync/internal/models"
	"github.com/prudhvinik1/caresync/internal/repositories"
)

// IngestResult describes what happened to one inbound batch.
type IngestResult struct {
	Received  int  // records in the batch header
	Added     int  // newly registered and persisted
	Skipped   int  // records with an unknown type tag
	Discarded bool // whole batch dropped because a reset is pending
}

// SyncEngine is the single authority on which events exist. It keeps an
// index keyed by (type, timestamp) for duplicate detection and the events
// in arrival order. Every accepted event is written to both the index and
// the store while mu is held.
type SyncEngine struct {
	store  repositories.EventStore
	reset  *ResetState
	logger *slog.Logger

	mu      sync.Mutex
	index   map[models.Event]struct{}
	ordered []models.Event
}

func NewSyncEngine(store repositories.EventStore, reset *ResetState, logger *slog.Logger) *SyncEngine {
	return &SyncEngine{
		store:  store,
		reset:  reset,
		logger: logger,
		index:  make(map[models.Event]struct{}),
	}
}

// Start rebuilds the index from the store. Loaded events are only
// registered; they are already persisted.
func (e *SyncEngine) Start(ctx context.Context) error {
	loaded, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load event log: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetIndexLocked()
	registered := 0
	for _, eventType := range models.EventTypes {
		for _, timestamp := range loaded[eventType] {
			if e.registerLocked(models.Event{Type: eventType, Timestamp: timestamp}) {
				registered++
			}
		}
	}

	e.logger.Info("event index rebuilt", "events", registered)
	return nil
}

// Register admits event into the index unless an event with the same type
// and timestamp is already known.
func (e *SyncEngine) Register(event models.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerLocked(event)
}

func (e *SyncEngine) registerLocked(event models.Event) bool {
	if _, exists := e.index[event]; exists {
		return false
	}
	e.index[event] = struct{}{}
	e.ordered = append(e.ordered, event)
	return true
}

// unregisterLastLocked undoes the registerLocked call that just admitted
// event.
func (e *SyncEngine) unregisterLastLocked(event models.Event) {
	delete(e.index, event)
	e.ordered = e.ordered[:len(e.ordered)-1]
}

// IngestBatch registers and persists every new event of batch in wire
// order. While a reset is pending the batch is dropped as a whole. If a
// store write fails the event is unregistered again and the error returned;
// events before it stay ingested.
func (e *SyncEngine) IngestBatch(ctx context.Context, batch *codec.Batch) (IngestResult, error) {
	result := IngestResult{Received: batch.Len()}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reset.Pending() {
		result.Discarded = true
		e.logger.Info("discarding event batch while reset is pending", "received", result.Received)
		return result, nil
	}

	for slot, event := range batch.Events() {
		if event == nil {
			result.Skipped++
			e.logger.Warn("skipping record with unknown event type", "slot", slot)
			continue
		}

		if !e.registerLocked(*event) {
			continue
		}

		if err := e.store.Append(ctx, *event); err != nil {
			e.unregisterLastLocked(*event)
			return result, fmt.Errorf("failed to persist %s event: %w", event.Type, err)
		}
		result.Added++
	}

	e.logger.Info("event batch ingested",
		"received", result.Received,
		"added", result.Added,
		"skipped", result.Skipped,
	)
	return result, nil
}

// Wipe clears the store and then the index. On error neither changes.
func (e *SyncEngine) Wipe(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.resetIndexLocked()
	return nil
}

func (e *SyncEngine) resetIndexLocked() {
	e.index = make(map[models.Event]struct{})
	e.ordered = nil
}

// Export projects the known events into per-type timestamp sequences in
// arrival order. Every type is present, possibly empty.
func (e *SyncEngine) Export() map[models.EventType][]uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	export := make(map[models.EventType][]uint32, len(models.EventTypes))
	for _, eventType := range models.EventTypes {
		export[eventType] = []uint32{}
	}
	for _, event := range e.ordered {
		export[event.Type] = append(export[event.Type], event.Timestamp)
	}
	return export
}

// Events returns the known events in arrival order.
func (e *SyncEngine) Events() []models.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make([]models.Event, len(e.ordered))
	copy(events, e.ordered)
	return events
}

// Latest returns the newest timestamp per type, omitting types with no
// events.
func (e *SyncEngine) Latest() map[models.EventType]uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	latest := make(map[models.EventType]uint32)
	for _, event := range e.ordered {
		if current, ok := latest[event.Type]; !ok || event.Timestamp > current {
			latest[event.Type] = event.Timestamp
		}
	}
	return latest
}
