package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/prudhvinik1/caresync/internal/models"
)

const (
	// RecordSize is one serialized event: a type tag followed by a
	// little-endian uint32 timestamp.
	RecordSize = 5

	// MaxBatchEvents is the largest count the one-byte header can hold.
	MaxBatchEvents = 255
)

var (
	ErrMalformedBatch = errors.New("malformed event batch")
	ErrTooManyEvents  = errors.New("too many events for one batch")
)

// Batch is a validated event batch. It references the buffer it was decoded
// from and decodes records only when iterated.
type Batch struct {
	buf   []byte
	count int
}

// DecodeBatch checks the header of buf and returns a Batch over its records.
// Bytes past the last record are ignored.
func DecodeBatch(buf []byte) (*Batch, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedBatch)
	}

	count := int(buf[0])
	need := 1 + RecordSize*count
	if len(buf) < need {
		return nil, fmt.Errorf("%w: %d events need %d bytes, got %d", ErrMalformedBatch, count, need, len(buf))
	}

	return &Batch{buf: buf[:need], count: count}, nil
}

// Len returns the event count from the batch header, including records
// whose type tag is unknown.
func (b *Batch) Len() int {
	return b.count
}

// Events yields every record slot in wire order. A slot with an unknown type
// tag yields a nil event; callers skip it and keep going.
func (b *Batch) Events() iter.Seq2[int, *models.Event] {
	return func(yield func(int, *models.Event) bool) {
		for i := 0; i < b.count; i++ {
			if !yield(i, b.record(i)) {
				return
			}
		}
	}
}

func (b *Batch) record(i int) *models.Event {
	offset := 1 + RecordSize*i
	eventType := models.EventType(b.buf[offset])
	if !eventType.Valid() {
		return nil
	}
	return &models.Event{
		Type:      eventType,
		Timestamp: binary.LittleEndian.Uint32(b.buf[offset+1 : offset+RecordSize]),
	}
}

// EncodeBatch serializes events in the layout DecodeBatch reads.
func EncodeBatch(events []models.Event) ([]byte, error) {
	if len(events) > MaxBatchEvents {
		return nil, fmt.Errorf("%w: %d", ErrTooManyEvents, len(events))
	}

	buf := make([]byte, 1, 1+RecordSize*len(events))
	buf[0] = byte(len(events))
	for _, event := range events {
		buf = append(buf, byte(event.Type))
		buf = binary.LittleEndian.AppendUint32(buf, event.Timestamp)
	}
	return buf, nil
}
