package models

import "strconv"

// EventType identifies what the caregiver logged on the device. The numeric
// values are the wire tags.
type EventType uint8

const (
	EventFeed EventType = iota
	EventDiaperChange
	EventSleepStart
	EventSleepStop
)

// EventTypes lists every known type in tag order.
var EventTypes = []EventType{EventFeed, EventDiaperChange, EventSleepStart, EventSleepStop}

func (t EventType) Valid() bool {
	return t <= EventSleepStop
}

func (t EventType) String() string {
	switch t {
	case EventFeed:
		return "feed"
	case EventDiaperChange:
		return "diaper_change"
	case EventSleepStart:
		return "sleep_start"
	case EventSleepStop:
		return "sleep_stop"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// PersistKey is the storage key holding this type's timestamps. Keys start
// at 1, matching the keys the configuration page reads.
func (t EventType) PersistKey() string {
	return strconv.Itoa(int(t) + 1)
}

// Event is a single logged occurrence. Two events with the same type and
// timestamp are the same occurrence, so Event is used directly as its
// dedup key.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp uint32    `json:"timestamp"`
}
