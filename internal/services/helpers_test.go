package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prudhvinik1/caresync/internal/codec"
	"github.com/prudhvinik1/caresync/internal/models"
	"github.com/prudhvinik1/caresync/internal/repositories"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore wraps a real JSONEventStore over memory and records every
// append and clear.
type countingStore struct {
	*repositories.JSONEventStore
	kv         *repositories.MemoryKVStore
	appends    []models.Event
	clears     int
	failAppend func(models.Event) error
	failClear  error
}

func newCountingStore() *countingStore {
	kv := repositories.NewMemoryKVStore()
	return &countingStore{
		JSONEventStore: repositories.NewJSONEventStore(kv, testLogger()),
		kv:             kv,
	}
}

func (s *countingStore) Append(ctx context.Context, event models.Event) error {
	if s.failAppend != nil {
		if err := s.failAppend(event); err != nil {
			return err
		}
	}
	s.appends = append(s.appends, event)
	return s.JSONEventStore.Append(ctx, event)
}

func (s *countingStore) Clear(ctx context.Context) error {
	if s.failClear != nil {
		return s.failClear
	}
	s.clears++
	return s.JSONEventStore.Clear(ctx)
}

var errSendFailed = errors.New("bluetooth disconnected")

// fakeSender records sent messages and fails while failures remain.
type fakeSender struct {
	mu       sync.Mutex
	sent     []models.Message
	attempts int
	failures int
}

func (s *fakeSender) Send(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errSendFailed
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func mustBatch(t *testing.T, buf []byte) *codec.Batch {
	t.Helper()
	batch, err := codec.DecodeBatch(buf)
	require.NoError(t, err)
	return batch
}

func encodeBatch(t *testing.T, events ...models.Event) []byte {
	t.Helper()
	buf, err := codec.EncodeBatch(events)
	require.NoError(t, err)
	return buf
}

// deadlineSender records the deadline of the context it is sent with.
type deadlineSender struct {
	deadline    time.Time
	hasDeadline bool
}

func (s *deadlineSender) Send(ctx context.Context, msg models.Message) error {
	s.deadline, s.hasDeadline = ctx.Deadline()
	return nil
}
