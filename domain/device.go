// Package domain contains core concepts of the multi-device sync system.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

// DeviceType identifies the class of client a device belongs to.
// The zero value is unknown and always loses priority comparisons.
type DeviceType string

const (
	DeviceDesktop  DeviceType = "desktop"
	DeviceMobile   DeviceType = "mobile"
	DeviceWearable DeviceType = "wearable"
	DeviceWeb      DeviceType = "web"
)

// devicePriorities defines the total order used by priority-based
// conflict resolution: desktop > mobile > wearable > web.
var devicePriorities = map[DeviceType]int{
	DeviceDesktop:  4,
	DeviceMobile:   3,
	DeviceWearable: 2,
	DeviceWeb:      1,
}

// Priority returns the conflict-resolution rank of the device type.
// Unknown types rank below every known type.
func (t DeviceType) Priority() int {
	return devicePriorities[t]
}

// Known reports whether the type is one of the four supported classes.
func (t DeviceType) Known() bool {
	_, ok := devicePriorities[t]
	return ok
}

// Device is the persisted registration record of one client device.
type Device struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Type         DeviceType `json:"type"`
	Name         string     `json:"name"`
	Capabilities []string   `json:"capabilities,omitempty"`
	// PairingHash holds the argon2id hash of the pairing code presented at
	// registration. Empty for devices that registered without one.
	PairingHash string    `json:"pairingHash,omitempty"`
	Active      bool      `json:"active"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
