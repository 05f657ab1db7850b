package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"devicesync/domain/event"
)

// recordingSink captures every consumed event, for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	fail   error
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func TestRegistry_Join_OneRoomOneConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	sink := &recordingSink{}

	// Given no connection exists
	req.Empty(registry.Rooms())

	// When a connection joins its user room
	registry.Join("alice", connectionID, sink)

	// Then
	req.Equal(1, registry.RoomSize("alice"))
	req.Equal([]string{connectionID}, registry.MembersOf("alice"))
	req.Len(registry.SinksForRoom("alice", ""), 1)
}

func TestRegistry_Join_MultipleConnectionsSameUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// When three devices of the same user connect
	registry.Join("alice", "c1", &recordingSink{})
	registry.Join("alice", "c2", &recordingSink{})
	registry.Join("alice", "c3", &recordingSink{})

	// Then they share one room
	req.Equal(3, registry.RoomSize("alice"))
	req.Equal([]string{"alice"}, registry.Rooms())
}

func TestRegistry_Leave_EmptyRoomIsRemoved(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Join("alice", "c1", &recordingSink{})

	// When the last connection leaves
	registry.Leave("alice", "c1")

	// Then the room disappears entirely
	req.Empty(registry.Rooms())
	req.Zero(registry.RoomSize("alice"))
	req.Nil(registry.SinksForRoom("alice", ""))
}

func TestRegistry_Leave_UnknownConnectionIsNoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Join("alice", "c1", &recordingSink{})

	registry.Leave("alice", "ghost")
	registry.Leave("bob", "c1")

	req.Equal(1, registry.RoomSize("alice"))
}

func TestRegistry_SinksForRoom_ExcludesOneConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}
	registry.Join("alice", "c1", sink1)
	registry.Join("alice", "c2", sink2)

	// When resolving sinks excluding the producer
	sinks := registry.SinksForRoom("alice", "c1")

	// Then only the sibling remains
	req.Len(sinks, 1)
	req.Same(sink2, sinks[0].(*recordingSink))
}

func TestRegistry_BindDevice_EnablesDeviceLookups(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := &recordingSink{}
	registry.Join("alice", "c1", sink)

	// Given the device is not yet bound
	req.False(registry.IsDeviceConnected("dev-1"))
	req.Nil(registry.SinkForDevice("alice", "dev-1"))

	// When binding
	registry.BindDevice("c1", "dev-1")

	// Then device-addressed lookups resolve
	req.True(registry.IsDeviceConnected("dev-1"))
	req.Same(sink, registry.SinkForDevice("alice", "dev-1").(*recordingSink))
	req.Equal([]string{"dev-1"}, registry.DevicesOf("alice"))
}

func TestRegistry_BindDevice_UnknownConnectionIgnored(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.BindDevice("ghost", "dev-1")

	req.False(registry.IsDeviceConnected("dev-1"))
}

func TestRegistry_SinkForDevice_ScopedToUserRoom(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Join("alice", "c1", &recordingSink{})
	registry.BindDevice("c1", "dev-1")

	// A device bound in alice's room is invisible from bob's
	req.Nil(registry.SinkForDevice("bob", "dev-1"))
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			connectionID := uuid.NewString()
			registry.Join("alice", connectionID, &recordingSink{})
			registry.BindDevice(connectionID, uuid.NewString())
			registry.Heartbeat(connectionID)
			registry.Leave("alice", connectionID)
		}()
	}
	wg.Wait()

	// Every join was matched by a leave, so the room must be gone
	req.Empty(registry.Rooms())
}
