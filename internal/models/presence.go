package models

import (
	"time"

	"github.com/google/uuid"
)

type Presence struct {
	DeviceID uuid.UUID `json:"device_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
