//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"devicesync/domain"
	"devicesync/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without manual naming.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives domain events addressed to one connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Session is the registry's view of one live connection.
type Session struct {
	ConnectionID    string
	UserID          string
	DeviceID        string
	Sink            EventSink
	EstablishedAt   time.Time
	LastHeartbeatAt time.Time
}

// IRegistry tracks room membership and device liveness. Answers are
// best-effort: a connection reported live may already be mid-teardown.
type IRegistry interface {
	Join(userID, connectionID string, sink EventSink)
	Leave(userID, connectionID string)
	BindDevice(connectionID, deviceID string)
	Heartbeat(connectionID string)
	MembersOf(userID string) []string
	RoomSize(userID string) int
	IsDeviceConnected(deviceID string) bool
	SinksForRoom(userID, exceptConnectionID string) []EventSink
	SinkForDevice(userID, deviceID string) EventSink
	DevicesOf(userID string) []string
	Rooms() []string
}

// IConversationStore is the authoritative conversation-ownership state.
// All mutations for one key are linearized.
type IConversationStore interface {
	Start(userID, conversationID string, state domain.ConversationState) domain.ConversationState
	Get(userID, conversationID string) (domain.ConversationState, bool)
	Update(userID, conversationID string, patch domain.StatePatch) (domain.StatePatch, bool)
	End(userID, conversationID string) bool
	CommitHandoff(userID, conversationID, toDeviceID string, contextPatch map[string]string) (domain.ConversationState, bool)
	ActiveCount(userID string) int
}

// IOfflineQueue buffers messages for disconnected devices.
type IOfflineQueue interface {
	Enqueue(deviceID string, message domain.SyncMessage)
	Drain(deviceID string) []domain.SyncMessage
	Len(deviceID string) int
	Depths() map[string]int
}

// IDeviceRepository is the persistence collaborator for device records.
// Failures here never tear down a connection.
type IDeviceRepository interface {
	Create(device domain.Device) (domain.Device, error)
	Update(deviceID string, patch func(*domain.Device)) (domain.Device, error)
	UpdateLastSeen(deviceID string) error
	SetActive(deviceID string, active bool) error
	Get(deviceID string) (domain.Device, error)
	ListByUser(userID string) ([]domain.Device, error)
}
