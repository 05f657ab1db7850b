// Package event defines the domain events delivered to connected devices.
// Events are fanned out per user room; the transport layer turns them into
// wire messages.
package event

import (
	"time"

	"devicesync/domain"
)

// DomainEvent is anything that can be delivered to the devices of one
// user. Room returns the owning user id, the unit of broadcast.
type DomainEvent interface {
	Room() string
}

// DeviceStatusChanged announces a device joining or leaving the room.
type DeviceStatusChanged struct {
	UserID       string
	DeviceID     string
	ConnectionID string
	Status       string // "connected" or "disconnected"
	At           time.Time
}

func (e DeviceStatusChanged) Room() string { return e.UserID }

// MessageRelayed carries a sync message on its way to the other room
// members.
type MessageRelayed struct {
	Message domain.SyncMessage
}

func (e MessageRelayed) Room() string { return e.Message.UserID }

// ConversationStarted announces a new authoritative conversation state.
type ConversationStarted struct {
	UserID         string
	ConversationID string
	State          domain.ConversationState
	At             time.Time
}

func (e ConversationStarted) Room() string { return e.UserID }

// ConversationUpdated carries the delta applied to an existing state.
type ConversationUpdated struct {
	UserID         string
	ConversationID string
	Delta          domain.StatePatch
	At             time.Time
}

func (e ConversationUpdated) Room() string { return e.UserID }

// ConversationEnded announces deletion of the keyed state.
type ConversationEnded struct {
	UserID         string
	ConversationID string
	At             time.Time
}

func (e ConversationEnded) Room() string { return e.UserID }

// HandoffIncoming warns the target device that a transfer is about to
// commit and asks it to acknowledge readiness.
type HandoffIncoming struct {
	UserID         string
	ConversationID string
	FromDeviceID   string
	ToDeviceID     string
	At             time.Time
}

func (e HandoffIncoming) Room() string { return e.UserID }

// HandoffReceived tells the new owner it now holds the conversation,
// together with the merged context.
type HandoffReceived struct {
	UserID         string
	ConversationID string
	FromDeviceID   string
	Context        map[string]string
	At             time.Time
}

func (e HandoffReceived) Room() string { return e.UserID }

// HandoffCompleted tells the previous owner the transfer is done.
type HandoffCompleted struct {
	UserID         string
	ConversationID string
	ToDeviceID     string
	At             time.Time
}

func (e HandoffCompleted) Room() string { return e.UserID }

// ConflictResolved publishes the declared winner together with the full
// candidate set and the strategy actually applied, so every device can
// reconcile local state.
type ConflictResolved struct {
	UserID         string
	ConversationID string
	Resolution     domain.Resolution
	At             time.Time
}

func (e ConflictResolved) Room() string { return e.UserID }

// ServerShutdown is a courtesy notice sent to every room before the
// process exits.
type ServerShutdown struct {
	Message string
	At      time.Time
}

// Room is empty: the gateway addresses this event to all rooms.
func (e ServerShutdown) Room() string { return "" }
