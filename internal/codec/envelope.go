package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/prudhvinik1/caresync/internal/models"
)

var ErrMalformedEnvelope = errors.New("malformed message envelope")

// envelope is the on-the-wire message: a CBOR map with small integer keys.
type envelope struct {
	Type  models.MessageType `cbor:"0,keyasint"`
	Batch []byte             `cbor:"1,keyasint,omitempty"`
}

// encMode uses Core Deterministic Encoding so the same message always
// produces the same bytes.
var encMode cbor.EncMode

// decMode ignores unknown keys so newer devices can add fields.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// DecodeMessage turns an envelope into one of the models.Message variants.
// Envelopes with a type nobody handles decode to models.UnrecognizedMessage.
func DecodeMessage(data []byte) (models.Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case models.MessageEventTransmission:
		return models.EventTransmission{Batch: env.Batch}, nil
	case models.MessageResetAck:
		return models.ResetAck{}, nil
	case models.MessageResetRequest:
		return models.ResetRequest{}, nil
	default:
		return models.UnrecognizedMessage{MessageType: env.Type}, nil
	}
}

// EncodeMessage is the inverse of DecodeMessage.
func EncodeMessage(msg models.Message) ([]byte, error) {
	env := envelope{Type: msg.Type()}
	if transmission, ok := msg.(models.EventTransmission); ok {
		env.Batch = transmission.Batch
	}

	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", msg, err)
	}
	return data, nil
}
