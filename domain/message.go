package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncMessage is an immutable event relayed between the devices of one
// user. Payload is opaque to the core: it is carried, never interpreted.
type SyncMessage struct {
	ID        uuid.UUID
	Type      string
	UserID    string
	DeviceID  string
	Timestamp time.Time
	Payload   map[string]any
}
