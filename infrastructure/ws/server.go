package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"devicesync/auth"
	"devicesync/domain"
	syncerrors "devicesync/errors"
	"devicesync/observability"
	"devicesync/services"
)

// maxMessageBytes caps a single inbound frame. Sync payloads are small;
// anything bigger is a misbehaving client.
const maxMessageBytes = 1 << 20

// Server is the connection gateway: it owns the connection lifecycle and
// is the only component that talks to the network. Everything else is
// delegated to the sync service.
type Server struct {
	log            *slog.Logger
	verifier       *auth.Verifier
	service        *services.SyncService
	metrics        *observability.Metrics
	bufferSize     int
	writeTimeout   time.Duration
	originPatterns []string
}

func NewServer(log *slog.Logger, verifier *auth.Verifier, service *services.SyncService,
	metrics *observability.Metrics, bufferSize int, writeTimeout time.Duration,
	originPatterns []string) *Server {
	return &Server{
		log:            log,
		verifier:       verifier,
		service:        service,
		metrics:        metrics,
		bufferSize:     bufferSize,
		writeTimeout:   writeTimeout,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket is the HTTP handler for /ws. The credential is verified
// after the upgrade so the failure can be emitted as a structured event
// before the socket closes, which is what clients expect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		return
	}
	sock.SetReadLimit(maxMessageBytes)

	conn := newConn(context.Background(), s.log, sock, uuid.NewString(), s.bufferSize, s.writeTimeout, s.metrics)
	defer conn.cancel()

	userID, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		_ = conn.writeNow(r.Context(), errorMessage(err, "credential rejected"))
		conn.setState(stateDisconnected)
		_ = sock.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	conn.userID = userID
	conn.setState(stateAuthenticated)

	// The pump must be draining before anything is enqueued: a backlog
	// replay larger than the send buffer would otherwise overflow it
	// before the first frame ever hits the wire.
	go conn.writePump()

	s.service.JoinRoom(conn.ctx, userID, conn.id, conn)
	defer func() {
		conn.setState(stateDisconnected)
		s.service.LeaveRoom(context.Background(), userID, conn.id, conn.DeviceID())
	}()

	now := time.Now().UTC()
	conn.enqueue(serverMessage{
		Type:         "connected",
		ConnectionID: conn.id,
		UserID:       userID,
		Timestamp:    &now,
	})

	// An optional deviceId on the handshake is a reconnect fast path: bind
	// immediately and replay whatever queued up while the device was away.
	if deviceID := r.URL.Query().Get("deviceId"); deviceID != "" {
		conn.bindDevice(deviceID)
		backlog := s.service.ResumeDevice(conn.ctx, userID, conn.id, deviceID)
		s.replayBacklog(conn, backlog)
	}

	conn.setState(stateActive)
	s.readPump(conn)
}

func (s *Server) readPump(conn *Conn) {
	defer conn.cancel()
	for {
		typ, data, err := conn.sock.Read(conn.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "binary frames are not supported"))
			continue
		}
		s.dispatch(conn, data)
	}
}

func (s *Server) dispatch(conn *Conn, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "invalid JSON"))
		return
	}

	switch msg.Type {
	case "register_device":
		s.handleRegisterDevice(conn, msg)
	case "sync_message":
		s.handleSyncMessage(conn, msg)
	case "heartbeat":
		s.handleHeartbeat(conn)
	case "start_conversation":
		s.handleStartConversation(conn, msg)
	case "update_conversation":
		s.handleUpdateConversation(conn, msg)
	case "end_conversation":
		s.handleEndConversation(conn, msg)
	case "request_handoff":
		s.handleRequestHandoff(conn, msg)
	case "handoff_ack":
		s.service.AcknowledgeHandoff(conn.userID, conn.DeviceID(), msg.ConversationID)
	case "resolve_conflict":
		s.handleResolveConflict(conn, msg)
	case "get_stats":
		conn.enqueue(serverMessage{Type: "connection_stats", Stats: s.service.Stats(conn.userID)})
	default:
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "unknown message type: "+msg.Type))
	}
}

func (s *Server) handleRegisterDevice(conn *Conn, msg clientMessage) {
	if msg.Device == nil {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "device attributes required"))
		return
	}

	device, backlog, err := s.service.RegisterDevice(conn.ctx, conn.userID, conn.id, *msg.Device)
	if err != nil {
		conn.enqueue(errorMessage(err, "device registration failed"))
		return
	}
	conn.bindDevice(device.ID)

	conn.enqueue(serverMessage{
		Type:     "device_registered",
		DeviceID: device.ID,
		Device:   toWireDevice(device),
		Queued:   len(backlog),
	})
	s.replayBacklog(conn, backlog)
}

func (s *Server) handleSyncMessage(conn *Conn, msg clientMessage) {
	userID := msg.UserID
	if userID == "" {
		userID = conn.userID
	}

	syncMsg := domain.SyncMessage{
		Type:    msg.MessageType,
		UserID:  userID,
		Payload: msg.Payload,
	}
	if msg.DeviceID != "" {
		syncMsg.DeviceID = msg.DeviceID
	}
	if msg.Timestamp != nil {
		syncMsg.Timestamp = *msg.Timestamp
	}

	relayed, err := s.service.Relay(conn.ctx, conn.userID, conn.id, conn.DeviceID(), syncMsg, msg.TargetDeviceID)
	if err != nil {
		conn.enqueue(errorMessage(err, "message rejected"))
		return
	}

	ts := relayed.Timestamp
	conn.enqueue(serverMessage{
		Type:      "sync_ack",
		MessageID: relayed.ID.String(),
		Timestamp: &ts,
	})
}

func (s *Server) handleHeartbeat(conn *Conn) {
	s.service.Heartbeat(conn.id, conn.DeviceID())
	now := time.Now().UTC()
	conn.enqueue(serverMessage{Type: "heartbeat_ack", Timestamp: &now})
}

func (s *Server) handleStartConversation(conn *Conn, msg clientMessage) {
	if msg.ConversationID == "" {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "conversationId required"))
		return
	}

	activeDevice := msg.ActiveDeviceID
	if activeDevice == "" {
		activeDevice = conn.DeviceID()
	}
	state := s.service.StartConversation(conn.ctx, conn.userID, conn.id, msg.ConversationID, domain.ConversationState{
		ActiveDeviceID: activeDevice,
		LastMessage:    msg.LastMessage,
		Participants:   msg.Participants,
		Context:        msg.Context,
	})

	now := time.Now().UTC()
	conn.enqueue(serverMessage{
		Type:           "conversation_started",
		ConversationID: msg.ConversationID,
		Timestamp:      &now,
		State: &wireConversation{
			ActiveDeviceID: state.ActiveDeviceID,
			LastMessage:    state.LastMessage,
			Participants:   state.Participants,
			Context:        state.Context,
		},
	})
}

func (s *Server) handleUpdateConversation(conn *Conn, msg clientMessage) {
	if msg.ConversationID == "" {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "conversationId required"))
		return
	}

	patch := domain.StatePatch{
		LastMessage:  msg.LastMessage,
		Participants: msg.Participants,
		Context:      msg.Context,
	}
	if msg.ActiveDeviceID != "" {
		active := msg.ActiveDeviceID
		patch.ActiveDeviceID = &active
	}

	// Updating an unknown conversation is a silent no-op by design: the
	// sender gets neither an error nor a confirmation.
	if !s.service.UpdateConversation(conn.ctx, conn.userID, conn.id, msg.ConversationID, patch) {
		return
	}

	now := time.Now().UTC()
	conn.enqueue(serverMessage{
		Type:           "conversation_updated",
		ConversationID: msg.ConversationID,
		Timestamp:      &now,
	})
}

func (s *Server) handleEndConversation(conn *Conn, msg clientMessage) {
	if msg.ConversationID == "" {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "conversationId required"))
		return
	}
	if !s.service.EndConversation(conn.ctx, conn.userID, conn.id, msg.ConversationID) {
		return
	}

	now := time.Now().UTC()
	conn.enqueue(serverMessage{
		Type:           "conversation_ended",
		ConversationID: msg.ConversationID,
		Timestamp:      &now,
	})
}

func (s *Server) handleRequestHandoff(conn *Conn, msg clientMessage) {
	from := msg.FromDeviceID
	if from == "" {
		from = conn.DeviceID()
	}
	req := domain.HandoffRequest{
		FromDeviceID:   from,
		ToDeviceID:     msg.ToDeviceID,
		ConversationID: msg.ConversationID,
		ContextPatch:   msg.ContextPatch,
	}
	if req.ConversationID == "" || req.ToDeviceID == "" || req.FromDeviceID == "" {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "conversationId, fromDeviceId and toDeviceId required"))
		return
	}

	// Success notifications (handoff_received / handoff_completed) are
	// delivered by the coordinator straight to the two devices involved.
	if _, err := s.service.RequestHandoff(conn.ctx, conn.userID, req, msg.AwaitAck); err != nil {
		conn.enqueue(errorMessage(err, "handoff failed"))
	}
}

func (s *Server) handleResolveConflict(conn *Conn, msg clientMessage) {
	if len(msg.Candidates) == 0 {
		conn.enqueue(errorMessage(syncerrors.ErrInvalidMessage, "candidates required"))
		return
	}

	_, err := s.service.ResolveConflict(conn.ctx, conn.userID, msg.ConversationID,
		fromWireCandidates(msg.Candidates), domain.Strategy(msg.Strategy))
	if err != nil {
		conn.enqueue(errorMessage(err, "conflict resolution failed"))
	}
}

// replayBacklog replays queued offline messages to a freshly bound device
// in original order. Sends block until the pump takes them, so a backlog
// larger than the send buffer arrives intact; a re-disconnect mid-replay
// abandons the remainder, a documented limitation of the offline queue.
func (s *Server) replayBacklog(conn *Conn, backlog []domain.SyncMessage) {
	for _, queued := range backlog {
		conn.enqueueWait(syncMessageEnvelope(queued))
	}
}

func errorMessage(err error, detail string) serverMessage {
	return serverMessage{
		Type:      "error",
		ErrorType: syncerrors.WireCode(err),
		Message:   detail,
	}
}

// bearerToken extracts the opaque credential from the Authorization
// header, falling back to the token query parameter (browser websocket
// clients cannot set headers).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return h
	}
	return r.URL.Query().Get("token")
}
