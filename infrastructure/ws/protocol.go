package ws

import (
	"time"

	"github.com/samber/lo"

	"devicesync/auth"
	"devicesync/domain"
	"devicesync/domain/event"
)

// clientMessage is the envelope for every inbound event. Fields are a
// union across event types; Type selects which ones matter.
type clientMessage struct {
	Type string `json:"type"`

	// register_device
	Device *auth.RegisterDeviceRequest `json:"device,omitempty"`

	// sync_message
	MessageType    string         `json:"messageType,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	DeviceID       string         `json:"deviceId,omitempty"`
	Timestamp      *time.Time     `json:"timestamp,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	TargetDeviceID string         `json:"targetDeviceId,omitempty"`

	// conversation lifecycle
	ConversationID string            `json:"conversationId,omitempty"`
	ActiveDeviceID string            `json:"activeDeviceId,omitempty"`
	Participants   []string          `json:"participants,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	LastMessage    any               `json:"lastMessage,omitempty"`

	// request_handoff / handoff_ack
	FromDeviceID string            `json:"fromDeviceId,omitempty"`
	ToDeviceID   string            `json:"toDeviceId,omitempty"`
	ContextPatch map[string]string `json:"contextPatch,omitempty"`
	AwaitAck     bool              `json:"awaitAck,omitempty"`

	// resolve_conflict
	Strategy   string          `json:"strategy,omitempty"`
	Candidates []wireCandidate `json:"candidates,omitempty"`
}

type wireCandidate struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"deviceId"`
	DeviceType string    `json:"deviceType"`
}

// serverMessage is the envelope for every outbound event.
type serverMessage struct {
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// connected
	ConnectionID string `json:"connectionId,omitempty"`
	UserID       string `json:"userId,omitempty"`

	// device_registered / device_status
	DeviceID string         `json:"deviceId,omitempty"`
	Device   *wireDevice    `json:"device,omitempty"`
	Status   string         `json:"status,omitempty"`
	Queued   int            `json:"queued,omitempty"`

	// sync_message / sync_ack
	MessageID   string         `json:"messageId,omitempty"`
	MessageType string         `json:"messageType,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`

	// conversation lifecycle
	ConversationID string            `json:"conversationId,omitempty"`
	State          *wireConversation `json:"state,omitempty"`
	Delta          *wireStateDelta   `json:"delta,omitempty"`

	// handoff
	FromDeviceID string            `json:"fromDeviceId,omitempty"`
	ToDeviceID   string            `json:"toDeviceId,omitempty"`
	Context      map[string]string `json:"context,omitempty"`

	// conflict_resolved
	Resolved   *wireCandidate  `json:"resolved,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Candidates []wireCandidate `json:"candidates,omitempty"`

	// connection_stats
	Stats any `json:"stats,omitempty"`

	// error / server_shutdown
	ErrorType string `json:"errorType,omitempty"`
	Message   string `json:"message,omitempty"`
}

type wireDevice struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
	Active       bool     `json:"active"`
}

type wireConversation struct {
	ActiveDeviceID string            `json:"activeDeviceId"`
	LastMessage    any               `json:"lastMessage,omitempty"`
	Participants   []string          `json:"participants,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

type wireStateDelta struct {
	ActiveDeviceID *string           `json:"activeDeviceId,omitempty"`
	LastMessage    any               `json:"lastMessage,omitempty"`
	Participants   []string          `json:"participants,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

func toWireDevice(d domain.Device) *wireDevice {
	return &wireDevice{
		ID:           d.ID,
		Type:         string(d.Type),
		Name:         d.Name,
		Capabilities: d.Capabilities,
		Active:       d.Active,
	}
}

func toWireCandidate(c domain.Candidate) wireCandidate {
	return wireCandidate{
		ID:         c.ID,
		Content:    c.Content,
		Timestamp:  c.Timestamp,
		DeviceID:   c.DeviceID,
		DeviceType: string(c.DeviceType),
	}
}

func fromWireCandidates(in []wireCandidate) []domain.Candidate {
	return lo.Map(in, func(c wireCandidate, _ int) domain.Candidate {
		return domain.Candidate{
			ID:         c.ID,
			Content:    c.Content,
			Timestamp:  c.Timestamp,
			DeviceID:   c.DeviceID,
			DeviceType: domain.DeviceType(c.DeviceType),
		}
	})
}

func syncMessageEnvelope(msg domain.SyncMessage) serverMessage {
	ts := msg.Timestamp
	return serverMessage{
		Type:        "sync_message",
		MessageID:   msg.ID.String(),
		MessageType: msg.Type,
		UserID:      msg.UserID,
		DeviceID:    msg.DeviceID,
		Timestamp:   &ts,
		Payload:     msg.Payload,
	}
}

// toServerMessage converts a fanned-out domain event into its wire form.
func toServerMessage(e event.DomainEvent) serverMessage {
	switch evt := e.(type) {
	case event.DeviceStatusChanged:
		return serverMessage{
			Type:         "device_status",
			UserID:       evt.UserID,
			DeviceID:     evt.DeviceID,
			ConnectionID: evt.ConnectionID,
			Status:       evt.Status,
			Timestamp:    &evt.At,
		}
	case event.MessageRelayed:
		return syncMessageEnvelope(evt.Message)
	case event.ConversationStarted:
		return serverMessage{
			Type:           "conversation_started",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			Timestamp:      &evt.At,
			State: &wireConversation{
				ActiveDeviceID: evt.State.ActiveDeviceID,
				LastMessage:    evt.State.LastMessage,
				Participants:   evt.State.Participants,
				Context:        evt.State.Context,
			},
		}
	case event.ConversationUpdated:
		return serverMessage{
			Type:           "conversation_updated",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			Timestamp:      &evt.At,
			Delta: &wireStateDelta{
				ActiveDeviceID: evt.Delta.ActiveDeviceID,
				LastMessage:    evt.Delta.LastMessage,
				Participants:   evt.Delta.Participants,
				Context:        evt.Delta.Context,
			},
		}
	case event.ConversationEnded:
		return serverMessage{
			Type:           "conversation_ended",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			Timestamp:      &evt.At,
		}
	case event.HandoffIncoming:
		return serverMessage{
			Type:           "handoff_incoming",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			FromDeviceID:   evt.FromDeviceID,
			ToDeviceID:     evt.ToDeviceID,
			Timestamp:      &evt.At,
		}
	case event.HandoffReceived:
		return serverMessage{
			Type:           "handoff_received",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			FromDeviceID:   evt.FromDeviceID,
			Context:        evt.Context,
			Timestamp:      &evt.At,
		}
	case event.HandoffCompleted:
		return serverMessage{
			Type:           "handoff_completed",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			ToDeviceID:     evt.ToDeviceID,
			Timestamp:      &evt.At,
		}
	case event.ConflictResolved:
		resolved := toWireCandidate(evt.Resolution.Resolved)
		return serverMessage{
			Type:           "conflict_resolved",
			UserID:         evt.UserID,
			ConversationID: evt.ConversationID,
			Resolved:       &resolved,
			Strategy:       string(evt.Resolution.Applied),
			Candidates:     lo.Map(evt.Resolution.Candidates, func(c domain.Candidate, _ int) wireCandidate { return toWireCandidate(c) }),
			Timestamp:      &evt.At,
		}
	case event.ServerShutdown:
		return serverMessage{
			Type:      "server_shutdown",
			Message:   evt.Message,
			Timestamp: &evt.At,
		}
	default:
		return serverMessage{Type: "unknown_event"}
	}
}
