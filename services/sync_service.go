package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"devicesync/auth"
	"devicesync/contract"
	"devicesync/domain"
	"devicesync/domain/event"
	syncerrors "devicesync/errors"
	"devicesync/observability"
	"devicesync/runtime"
)

// DeviceStats is the per-device slice of the management surface.
type DeviceStats struct {
	DeviceID   string            `json:"deviceId"`
	Type       domain.DeviceType `json:"type"`
	Name       string            `json:"name"`
	Active     bool              `json:"active"`
	LastSeenAt time.Time         `json:"lastSeenAt"`
}

// ConnectionStats is the management view of one user's sync state.
type ConnectionStats struct {
	ConnectedDevices    int           `json:"connectedDevices"`
	RoomSize            int           `json:"roomSize"`
	ActiveConversations int           `json:"activeConversations"`
	Devices             []DeviceStats `json:"devices"`
}

// SyncService is the single orchestration point behind the connection
// gateway: membership bookkeeping, relay and queueing policy, conversation
// lifecycle broadcasts, conflict resolution, and handoff delegation.
type SyncService struct {
	log         *slog.Logger
	registry    contract.IRegistry
	store       contract.IConversationStore
	queue       contract.IOfflineQueue
	coordinator *runtime.HandoffCoordinator
	devices     contract.IDeviceRepository
	metrics     *observability.Metrics
	ackTimeout  time.Duration
}

func NewSyncService(log *slog.Logger, registry contract.IRegistry,
	store contract.IConversationStore, queue contract.IOfflineQueue,
	coordinator *runtime.HandoffCoordinator, devices contract.IDeviceRepository,
	metrics *observability.Metrics, ackTimeout time.Duration) *SyncService {
	return &SyncService{
		log:         log,
		registry:    registry,
		store:       store,
		queue:       queue,
		coordinator: coordinator,
		devices:     devices,
		metrics:     metrics,
		ackTimeout:  ackTimeout,
	}
}

// JoinRoom registers a connection and tells the rest of the room a device
// came online. The joining connection is excluded from the broadcast.
func (s *SyncService) JoinRoom(ctx context.Context, userID, connectionID string, sink contract.EventSink) {
	s.registry.Join(userID, connectionID, sink)
	s.broadcast(ctx, userID, connectionID, event.DeviceStatusChanged{
		UserID:       userID,
		ConnectionID: connectionID,
		Status:       "connected",
		At:           time.Now().UTC(),
	})
}

// LeaveRoom removes a connection, marks its bound device inactive
// (best-effort) and tells the rest of the room. Registry persistence
// failures are logged, never propagated.
func (s *SyncService) LeaveRoom(ctx context.Context, userID, connectionID, deviceID string) {
	s.registry.Leave(userID, connectionID)

	if deviceID != "" {
		if err := s.devices.SetActive(deviceID, false); err != nil {
			s.log.Warn("failed to mark device inactive",
				"user_id", userID, "device_id", deviceID, "error", err)
		}
	}

	s.broadcast(ctx, userID, connectionID, event.DeviceStatusChanged{
		UserID:       userID,
		DeviceID:     deviceID,
		ConnectionID: connectionID,
		Status:       "disconnected",
		At:           time.Now().UTC(),
	})
}

// RegisterDevice upserts the device record, binds the device id to the
// connection, and flushes that device's offline queue to the now-live
// sink. The flushed messages are returned in original order.
func (s *SyncService) RegisterDevice(ctx context.Context, userID, connectionID string, req auth.RegisterDeviceRequest) (domain.Device, []domain.SyncMessage, error) {
	if err := auth.ValidateRegisterDevice(req); err != nil {
		return domain.Device{}, nil, fmt.Errorf("%w: %v", syncerrors.ErrInvalidMessage, err)
	}

	record := domain.Device{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         domain.DeviceType(req.Type),
		Name:         req.Name,
		Capabilities: req.Capabilities,
		Active:       true,
		LastSeenAt:   time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	if req.PairingCode != "" {
		hash, err := auth.HashPairingCode(req.PairingCode)
		if err != nil {
			return domain.Device{}, nil, fmt.Errorf("%w: %v", syncerrors.ErrRegistryFailure, err)
		}
		record.PairingHash = hash
	}

	device, err := s.devices.Create(record)
	if err != nil {
		return domain.Device{}, nil, fmt.Errorf("%w: %v", syncerrors.ErrRegistryFailure, err)
	}

	s.registry.BindDevice(connectionID, device.ID)

	backlog := s.queue.Drain(device.ID)
	return device, backlog, nil
}

// ResumeDevice rebinds a previously registered device to a fresh
// connection and returns its queued backlog. Used by the reconnect fast
// path, where the client already knows its device id.
func (s *SyncService) ResumeDevice(ctx context.Context, userID, connectionID, deviceID string) []domain.SyncMessage {
	s.registry.BindDevice(connectionID, deviceID)
	if err := s.devices.SetActive(deviceID, true); err != nil {
		s.log.Debug("failed to reactivate device", "device_id", deviceID, "error", err)
	}
	s.TouchDevice(deviceID)
	return s.queue.Drain(deviceID)
}

// Heartbeat refreshes both the in-memory session and the persisted device
// record.
func (s *SyncService) Heartbeat(connectionID, deviceID string) {
	s.registry.Heartbeat(connectionID)
	s.TouchDevice(deviceID)
}

// Relay validates and fans a sync message out to the rest of the room.
// Cross-user payloads are rejected; missing timestamp and device id are
// filled in from the authenticated session. A targeted message whose
// target is offline goes to that device's queue instead.
func (s *SyncService) Relay(ctx context.Context, userID, connectionID, boundDeviceID string, msg domain.SyncMessage, targetDeviceID string) (domain.SyncMessage, error) {
	if msg.UserID != userID {
		return domain.SyncMessage{}, fmt.Errorf("%w: user mismatch", syncerrors.ErrInvalidMessage)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.DeviceID == "" {
		msg.DeviceID = boundDeviceID
	}

	if targetDeviceID != "" {
		if sink := s.registry.SinkForDevice(userID, targetDeviceID); sink != nil {
			s.deliver(ctx, sink, event.MessageRelayed{Message: msg})
			s.metrics.IncrMessagesRelayed()
		} else {
			s.queue.Enqueue(targetDeviceID, msg)
			s.metrics.IncrMessagesQueued()
		}
		return msg, nil
	}

	s.broadcast(ctx, userID, connectionID, event.MessageRelayed{Message: msg})
	s.metrics.IncrMessagesRelayed()
	return msg, nil
}

// StartConversation installs the keyed state and announces it to the rest
// of the room.
func (s *SyncService) StartConversation(ctx context.Context, userID, connectionID, conversationID string, state domain.ConversationState) domain.ConversationState {
	stored := s.store.Start(userID, conversationID, state)
	s.broadcast(ctx, userID, connectionID, event.ConversationStarted{
		UserID:         userID,
		ConversationID: conversationID,
		State:          stored,
		At:             time.Now().UTC(),
	})
	return stored
}

// UpdateConversation merges the patch and broadcasts the delta. Updating
// an absent conversation is a silent no-op: no error, no broadcast.
func (s *SyncService) UpdateConversation(ctx context.Context, userID, connectionID, conversationID string, patch domain.StatePatch) bool {
	delta, ok := s.store.Update(userID, conversationID, patch)
	if !ok {
		return false
	}
	s.broadcast(ctx, userID, connectionID, event.ConversationUpdated{
		UserID:         userID,
		ConversationID: conversationID,
		Delta:          delta,
		At:             time.Now().UTC(),
	})
	return true
}

// EndConversation deletes the keyed state and announces it.
func (s *SyncService) EndConversation(ctx context.Context, userID, connectionID, conversationID string) bool {
	if !s.store.End(userID, conversationID) {
		return false
	}
	s.broadcast(ctx, userID, connectionID, event.ConversationEnded{
		UserID:         userID,
		ConversationID: conversationID,
		At:             time.Now().UTC(),
	})
	return true
}

// ResolveConflict declares a winner among the candidates and publishes the
// resolution to the whole room, requester included, so every device
// reconciles against the same outcome.
func (s *SyncService) ResolveConflict(ctx context.Context, userID, conversationID string, candidates []domain.Candidate, strategy domain.Strategy) (domain.Resolution, error) {
	resolution, ok := domain.Resolve(candidates, strategy)
	if !ok {
		return domain.Resolution{}, fmt.Errorf("%w: no candidates", syncerrors.ErrInvalidMessage)
	}

	s.metrics.IncrConflictsResolved()
	s.broadcast(ctx, userID, "", event.ConflictResolved{
		UserID:         userID,
		ConversationID: conversationID,
		Resolution:     resolution,
		At:             time.Now().UTC(),
	})
	return resolution, nil
}

// RequestHandoff transfers conversation ownership. When ack is set the
// acknowledged variant is used: the target must confirm readiness within
// the configured timeout or the transfer aborts untouched.
func (s *SyncService) RequestHandoff(ctx context.Context, userID string, req domain.HandoffRequest, ack bool) (domain.HandoffResult, error) {
	if ack {
		return s.coordinator.RequestWithAck(ctx, userID, req, s.ackTimeout)
	}
	return s.coordinator.Request(ctx, userID, req)
}

// AcknowledgeHandoff resolves a pending handoff_incoming wait.
func (s *SyncService) AcknowledgeHandoff(userID, deviceID, conversationID string) {
	s.coordinator.Acknowledge(userID, deviceID, conversationID)
}

// TouchDevice refreshes the persisted last-seen marker. Best-effort.
func (s *SyncService) TouchDevice(deviceID string) {
	if deviceID == "" {
		return
	}
	if err := s.devices.UpdateLastSeen(deviceID); err != nil {
		s.log.Debug("failed to update device last seen", "device_id", deviceID, "error", err)
	}
}

// Stats assembles the management view for one user.
func (s *SyncService) Stats(userID string) ConnectionStats {
	records, err := s.devices.ListByUser(userID)
	if err != nil {
		s.log.Warn("failed to list devices for stats", "user_id", userID, "error", err)
	}
	return ConnectionStats{
		ConnectedDevices:    len(s.registry.DevicesOf(userID)),
		RoomSize:            s.registry.RoomSize(userID),
		ActiveConversations: s.store.ActiveCount(userID),
		Devices: lo.Map(records, func(d domain.Device, _ int) DeviceStats {
			return DeviceStats{
				DeviceID:   d.ID,
				Type:       d.Type,
				Name:       d.Name,
				Active:     d.Active,
				LastSeenAt: d.LastSeenAt,
			}
		}),
	}
}

// AnnounceShutdown sends a courtesy notice to every live connection so
// clients can distinguish a planned restart from a network failure.
func (s *SyncService) AnnounceShutdown(ctx context.Context, message string) {
	e := event.ServerShutdown{Message: message, At: time.Now().UTC()}
	for _, userID := range s.registry.Rooms() {
		s.broadcast(ctx, userID, "", e)
	}
}

// broadcast fans an event out to every room member except one connection.
// Delivery is best-effort: unreachable sinks are dropped and counted.
func (s *SyncService) broadcast(ctx context.Context, userID, exceptConnectionID string, e event.DomainEvent) {
	for _, sink := range s.registry.SinksForRoom(userID, exceptConnectionID) {
		s.deliver(ctx, sink, e)
	}
}

func (s *SyncService) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) {
	if err := sink.Consume(ctx, e); err != nil {
		s.metrics.IncrMessagesDropped()
		s.log.Debug("event delivery dropped", "room", e.Room(), "error", err)
	}
}
