package models

// MessageType is the value stored under key 0 of every envelope.
type MessageType int

const (
	MessageEventTransmission MessageType = 1
	MessageResetAck          MessageType = 2
	MessageResetRequest      MessageType = 3
)

// Message is a decoded envelope. The concrete types below are the only
// implementations.
type Message interface {
	Type() MessageType
	isMessage()
}

// EventTransmission carries a raw event batch from the device.
type EventTransmission struct {
	Batch []byte
}

// ResetAck is the device confirming it wiped its own log.
type ResetAck struct{}

// ResetRequest asks the device to wipe its log. Host to device only.
type ResetRequest struct{}

// UnrecognizedMessage holds the type of an envelope nobody handles.
type UnrecognizedMessage struct {
	MessageType MessageType
}

func (EventTransmission) Type() MessageType     { return MessageEventTransmission }
func (ResetAck) Type() MessageType              { return MessageResetAck }
func (ResetRequest) Type() MessageType          { return MessageResetRequest }
func (m UnrecognizedMessage) Type() MessageType { return m.MessageType }

func (EventTransmission) isMessage()   {}
func (ResetAck) isMessage()            {}
func (ResetRequest) isMessage()        {}
func (UnrecognizedMessage) isMessage() {}
