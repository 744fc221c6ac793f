package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prudhvinik1/caresync/internal/codec"
	"github.com/prudhvinik1/caresync/internal/models"
)

// ResetResponse is the configuration page's answer that starts a reset.
const ResetResponse = "reset"

// PresenceRecorder is notified of every device that sends a message.
type PresenceRecorder interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
}

// Dispatcher is the single entry point for inbound device messages and
// configuration view callbacks.
type Dispatcher struct {
	engine   *SyncEngine
	resets   *ResetCoordinator
	presence PresenceRecorder
	logger   *slog.Logger
}

// NewDispatcher wires the handlers together. presence may be nil.
func NewDispatcher(engine *SyncEngine, resets *ResetCoordinator, presence PresenceRecorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		resets:   resets,
		presence: presence,
		logger:   logger,
	}
}

// HandleMessage decodes one envelope and routes it. Malformed batches and
// unknown message types are logged and dropped. It returns an error for an
// undecodable envelope (wrapping codec.ErrMalformedEnvelope) and for store
// failures, so the transport can ask the device to send again.
func (d *Dispatcher) HandleMessage(ctx context.Context, deviceID uuid.UUID, raw []byte) error {
	msg, err := codec.DecodeMessage(raw)
	if err != nil {
		d.logger.Warn("dropping undecodable message", "error", err)
		return err
	}

	d.touch(ctx, deviceID)

	switch m := msg.(type) {
	case models.EventTransmission:
		return d.handleTransmission(ctx, m)
	case models.ResetAck:
		return d.resets.HandleAck(ctx)
	case models.ResetRequest:
		d.logger.Warn("ignoring reset request sent to the host")
	case models.UnrecognizedMessage:
		d.logger.Warn("ignoring message of unknown type", "type", m.MessageType)
	}
	return nil
}

func (d *Dispatcher) handleTransmission(ctx context.Context, m models.EventTransmission) error {
	batch, err := codec.DecodeBatch(m.Batch)
	if err != nil {
		d.logger.Warn("dropping malformed event batch", "error", err)
		return nil
	}

	if _, err := d.engine.IngestBatch(ctx, batch); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) touch(ctx context.Context, deviceID uuid.UUID) {
	if d.presence == nil || deviceID == uuid.Nil {
		return
	}
	if err := d.presence.SetPresence(ctx, &models.Presence{DeviceID: deviceID}); err != nil {
		d.logger.Warn("failed to record device presence", "device_id", deviceID, "error", err)
	}
}

// HandleConfigClosed handles the string the configuration page returns when
// it closes. Only ResetResponse does anything.
func (d *Dispatcher) HandleConfigClosed(ctx context.Context, response string) bool {
	d.logger.Info("configuration view closed", "response", response)
	if response != ResetResponse {
		return false
	}
	return d.resets.RequestReset(ctx)
}

// ConfigFragment renders the event log for the configuration page: a JSON
// object keyed "1".."4" whose values are JSON-encoded timestamp arrays.
func (d *Dispatcher) ConfigFragment() (string, error) {
	return ConfigFragment(d.engine.Export())
}

func ConfigFragment(export map[models.EventType][]uint32) (string, error) {
	fragment := make(map[string]string, len(models.EventTypes))
	for _, eventType := range models.EventTypes {
		timestamps := export[eventType]
		if timestamps == nil {
			timestamps = []uint32{}
		}
		encoded, err := json.Marshal(timestamps)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s timestamps: %w", eventType, err)
		}
		fragment[eventType.PersistKey()] = string(encoded)
	}

	data, err := json.Marshal(fragment)
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration fragment: %w", err)
	}
	return string(data), nil
}

// Export exposes the engine's per-type projection.
func (d *Dispatcher) Export() map[models.EventType][]uint32 {
	return d.engine.Export()
}

// Latest exposes the engine's newest-timestamp summary.
func (d *Dispatcher) Latest() map[models.EventType]uint32 {
	return d.engine.Latest()
}

// IsMalformed reports whether err came from a message the device sent
// rather than from the host side.
func IsMalformed(err error) bool {
	return errors.Is(err, codec.ErrMalformedEnvelope)
}
