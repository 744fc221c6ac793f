package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/caresync/internal/models"
)

const (
	DefaultRetryInterval = 5 * time.Second
	DefaultSendTimeout   = 10 * time.Second
)

// Sender delivers a message to the device. A nil error means the transport
// accepted it, not that the device acted on it.
type Sender interface {
	Send(ctx context.Context, msg models.Message) error
}

// ResetState is the process-wide pending-reset flag. The coordinator flips
// it; the sync engine reads it before ingesting.
type ResetState struct {
	pending atomic.Bool
}

func (s *ResetState) Pending() bool {
	return s.pending.Load()
}

// ResetCoordinator runs the two-phase reset: it sends a ResetRequest,
// retrying on send failure until the device acknowledges, and wipes the log
// only when the ResetAck arrives.
type ResetCoordinator struct {
	engine        *SyncEngine
	sender        Sender
	state         *ResetState
	clock         clockwork.Clock
	retryInterval time.Duration
	sendTimeout   time.Duration
	logger        *slog.Logger

	// generation identifies the current request chain. Retries scheduled by
	// an earlier chain see a different value and stop.
	mu         sync.Mutex
	generation uint64
	retry      clockwork.Timer
}

// ResetOption configures a ResetCoordinator in NewResetCoordinator.
type ResetOption func(*ResetCoordinator)

func WithClock(c clockwork.Clock) ResetOption {
	return func(r *ResetCoordinator) { r.clock = c }
}
func WithRetryInterval(d time.Duration) ResetOption {
	return func(r *ResetCoordinator) { r.retryInterval = d }
}
func WithSendTimeout(d time.Duration) ResetOption {
	return func(r *ResetCoordinator) { r.sendTimeout = d }
}

func NewResetCoordinator(engine *SyncEngine, sender Sender, state *ResetState, logger *slog.Logger, opts ...ResetOption) *ResetCoordinator {
	c := &ResetCoordinator{
		engine:        engine,
		sender:        sender,
		state:         state,
		clock:         clockwork.NewRealClock(),
		retryInterval: DefaultRetryInterval,
		sendTimeout:   DefaultSendTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Pending reports whether a reset is waiting for its acknowledgement.
func (c *ResetCoordinator) Pending() bool {
	return c.state.Pending()
}

// RequestReset moves Idle to ResetRequested and sends the first request. It
// returns false without sending anything if a reset is already pending.
func (c *ResetCoordinator) RequestReset(ctx context.Context) bool {
	if !c.state.pending.CompareAndSwap(false, true) {
		c.logger.Info("reset already pending, ignoring request")
		return false
	}

	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	c.logger.Info("reset requested")
	c.attempt(context.WithoutCancel(ctx), generation)
	return true
}

func (c *ResetCoordinator) current(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation == c.generation
}

// attempt sends one ResetRequest and schedules the next one if the send
// fails. It does nothing once the reset is no longer pending or the chain
// has been superseded.
func (c *ResetCoordinator) attempt(ctx context.Context, generation uint64) {
	if !c.state.Pending() || !c.current(generation) {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	err := c.sender.Send(sendCtx, models.ResetRequest{})
	cancel()

	if err == nil {
		c.logger.Debug("reset request sent")
		return
	}

	c.logger.Warn("reset request failed, scheduling retry",
		"error", err,
		"retry_at", c.clock.Now().Add(c.retryInterval),
	)
	c.scheduleRetry(ctx, generation)
}

// scheduleRetry replaces any scheduled retry of the chain, so a pending reset
// never has more than one timer.
func (c *ResetCoordinator) scheduleRetry(ctx context.Context, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	c.retry = c.clock.AfterFunc(c.retryInterval, func() {
		c.attempt(ctx, generation)
	})
}

// HandleAck completes a pending reset: the store and index are wiped, the
// pending flag cleared and any scheduled retry stopped. An acknowledgement
// with no reset pending changes nothing. If the wipe fails the reset stays
// pending and the request is sent again so the device acknowledges again.
func (c *ResetCoordinator) HandleAck(ctx context.Context) error {
	if !c.state.Pending() {
		c.logger.Warn("ignoring reset acknowledgement with no reset pending")
		return nil
	}

	if err := c.engine.Wipe(ctx); err != nil {
		c.mu.Lock()
		generation := c.generation
		c.mu.Unlock()

		c.scheduleRetry(context.WithoutCancel(ctx), generation)
		return fmt.Errorf("failed to wipe event log: %w", err)
	}

	c.mu.Lock()
	c.state.pending.Store(false)
	c.generation++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	c.logger.Info("reset completed")
	return nil
}
