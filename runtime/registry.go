package runtime

import (
	"sync"
	"time"

	"devicesync/contract"
)

type Set map[string]struct{}

// Registry tracks which connections belong to which user room and which
// device ids are currently bound to a live connection.
//
// Membership answers are best-effort: a connection reported "connected"
// may already be mid-teardown. That race is tolerated (eventually
// consistent membership), not treated as an error.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*contract.Session // connectionID -> session
	roomMembers map[string]Set               // userID -> connectionIDs
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*contract.Session),
		roomMembers: make(map[string]Set),
	}
}

// Join registers a connection in its user room. If the room does not yet
// exist it is initialized on the fly.
func (r *Registry) Join(userID, connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.sessions[connectionID] = &contract.Session{
		ConnectionID:    connectionID,
		UserID:          userID,
		Sink:            sink,
		EstablishedAt:   now,
		LastHeartbeatAt: now,
	}

	if _, ok := r.roomMembers[userID]; !ok {
		r.roomMembers[userID] = make(Set)
	}
	r.roomMembers[userID][connectionID] = struct{}{}
}

// Leave removes a connection from the registry and its room. Empty rooms
// are removed entirely so the map does not leak over time.
func (r *Registry) Leave(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connectionID)

	if members, ok := r.roomMembers[userID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.roomMembers, userID)
		}
	}
}

// BindDevice attaches a device id to an already-joined connection for the
// remainder of its lifetime. Unknown connections are ignored.
func (r *Registry) BindDevice(connectionID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connectionID]; ok {
		s.DeviceID = deviceID
	}
}

// Heartbeat refreshes connection liveness. It never broadcasts.
func (r *Registry) Heartbeat(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connectionID]; ok {
		s.LastHeartbeatAt = time.Now().UTC()
	}
}

// MembersOf lists the connection ids currently in a user's room.
func (r *Registry) MembersOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for connectionID := range members {
		out = append(out, connectionID)
	}
	return out
}

// RoomSize returns the number of open connections in a user's room.
func (r *Registry) RoomSize(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers[userID])
}

// IsDeviceConnected scans live sessions for a bound device id match.
func (r *Registry) IsDeviceConnected(deviceID string) bool {
	if deviceID == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// SinksForRoom resolves the room membership into live sinks, excluding
// one connection (the sender of a broadcast). Pass an empty exclusion to
// address the whole room.
func (r *Registry) SinksForRoom(userID, exceptConnectionID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[userID]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for connectionID := range members {
		if connectionID == exceptConnectionID {
			continue
		}
		if s, exists := r.sessions[connectionID]; exists {
			sinks = append(sinks, s.Sink)
		}
	}
	return sinks
}

// SinkForDevice returns the sink of the connection a device is bound to,
// or nil if the device is not live in that user's room.
func (r *Registry) SinkForDevice(userID, deviceID string) contract.EventSink {
	if deviceID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for connectionID := range r.roomMembers[userID] {
		if s, ok := r.sessions[connectionID]; ok && s.DeviceID == deviceID {
			return s.Sink
		}
	}
	return nil
}

// DevicesOf lists the device ids bound to live connections of a user.
// Connections that never registered a device are skipped.
func (r *Registry) DevicesOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []string
	for connectionID := range r.roomMembers[userID] {
		if s, ok := r.sessions[connectionID]; ok && s.DeviceID != "" {
			devices = append(devices, s.DeviceID)
		}
	}
	return devices
}

// Rooms lists the user ids with at least one live connection.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.roomMembers))
	for userID := range r.roomMembers {
		out = append(out, userID)
	}
	return out
}
