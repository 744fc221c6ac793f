package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/prudhvinik1/caresync/internal/models"
)

const emptyLog = "[]"

// JSONEventStore persists one JSON array of timestamps per event type on top
// of a KVStore. It never checks for duplicates; the sync engine decides what
// gets appended.
type JSONEventStore struct {
	kv     KVStore
	logger *slog.Logger

	mu  sync.RWMutex
	log map[models.EventType][]uint32
}

func NewJSONEventStore(kv KVStore, logger *slog.Logger) *JSONEventStore {
	return &JSONEventStore{
		kv:     kv,
		logger: logger,
		log:    emptyEventLog(),
	}
}

// Load reads every type's sequence. A missing or unparseable entry becomes
// an empty sequence and is rewritten as "[]"; the other types still load.
func (s *JSONEventStore) Load(ctx context.Context) (map[models.EventType][]uint32, error) {
	loaded := emptyEventLog()
	for _, eventType := range models.EventTypes {
		timestamps, err := s.loadType(ctx, eventType)
		if err != nil {
			return nil, err
		}
		loaded[eventType] = timestamps
	}

	s.mu.Lock()
	s.log = loaded
	s.mu.Unlock()

	return s.Snapshot(), nil
}

func (s *JSONEventStore) loadType(ctx context.Context, eventType models.EventType) ([]uint32, error) {
	key := eventType.PersistKey()

	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("initializing empty event log", "type", eventType)
		return s.resetKey(ctx, eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s log: %w", eventType, err)
	}

	var timestamps []uint32
	if err := json.Unmarshal([]byte(raw), &timestamps); err != nil {
		s.logger.Warn("discarding corrupt event log",
			"type", eventType,
			"error", err,
		)
		return s.resetKey(ctx, eventType)
	}
	if timestamps == nil {
		timestamps = []uint32{}
	}

	unique := dedupTimestamps(timestamps)
	if len(unique) != len(timestamps) {
		s.logger.Warn("dropping duplicate timestamps from event log",
			"type", eventType,
			"duplicates", len(timestamps)-len(unique),
		)
		if err := s.writeType(ctx, eventType, unique); err != nil {
			return nil, err
		}
	}
	return unique, nil
}

// dedupTimestamps keeps the first occurrence of each timestamp, in order.
func dedupTimestamps(timestamps []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(timestamps))
	unique := make([]uint32, 0, len(timestamps))
	for _, timestamp := range timestamps {
		if _, ok := seen[timestamp]; ok {
			continue
		}
		seen[timestamp] = struct{}{}
		unique = append(unique, timestamp)
	}
	return unique
}

func (s *JSONEventStore) writeType(ctx context.Context, eventType models.EventType, timestamps []uint32) error {
	data, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("failed to marshal %s log: %w", eventType, err)
	}
	if err := s.kv.Set(ctx, eventType.PersistKey(), string(data)); err != nil {
		return fmt.Errorf("failed to persist %s log: %w", eventType, err)
	}
	return nil
}

func (s *JSONEventStore) resetKey(ctx context.Context, eventType models.EventType) ([]uint32, error) {
	if err := s.kv.Set(ctx, eventType.PersistKey(), emptyLog); err != nil {
		return nil, fmt.Errorf("failed to reset %s log: %w", eventType, err)
	}
	return []uint32{}, nil
}

// Append adds event's timestamp to its type's sequence and rewrites only
// that type's entry. Memory is updated only once the write succeeds.
func (s *JSONEventStore) Append(ctx context.Context, event models.Event) error {
	if !event.Type.Valid() {
		return fmt.Errorf("cannot append event of type %s", event.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(s.log[event.Type]), event.Timestamp)
	if err := s.writeType(ctx, event.Type, next); err != nil {
		return err
	}

	s.log[event.Type] = next
	return nil
}

// Clear empties every type in one atomic write. Readers see either the old
// log or the empty one.
func (s *JSONEventStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]string, len(models.EventTypes))
	for _, eventType := range models.EventTypes {
		values[eventType.PersistKey()] = emptyLog
	}

	if err := s.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to clear event log: %w", err)
	}

	s.log = emptyEventLog()
	return nil
}

// Snapshot returns a copy of the in-memory log.
func (s *JSONEventStore) Snapshot() map[models.EventType][]uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[models.EventType][]uint32, len(s.log))
	for eventType, timestamps := range s.log {
		snapshot[eventType] = slices.Clone(timestamps)
	}
	return snapshot
}

func emptyEventLog() map[models.EventType][]uint32 {
	log := make(map[models.EventType][]uint32, len(models.EventTypes))
	for _, eventType := range models.EventTypes {
		log[eventType] = []uint32{}
	}
	return log
}
