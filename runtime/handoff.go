package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"devicesync/contract"
	"devicesync/domain"
	"devicesync/domain/event"
	syncerrors "devicesync/errors"
	"devicesync/observability"
)

type ackKey struct {
	userID         string
	deviceID       string
	conversationID string
}

// HandoffCoordinator orchestrates transfer of conversation ownership
// between two connected devices. Preconditions are validated before any
// mutation; the commit itself is a single store operation. Post-commit
// notifications are at-most-once: there is no rollback if delivery fails.
type HandoffCoordinator struct {
	log      *slog.Logger
	registry contract.IRegistry
	store    contract.IConversationStore
	metrics  *observability.Metrics

	mu      sync.Mutex
	pending map[ackKey]chan struct{}
}

func NewHandoffCoordinator(log *slog.Logger, registry contract.IRegistry,
	store contract.IConversationStore, metrics *observability.Metrics) *HandoffCoordinator {
	return &HandoffCoordinator{
		log:      log,
		registry: registry,
		store:    store,
		metrics:  metrics,
		pending:  make(map[ackKey]chan struct{}),
	}
}

// Request performs the synchronous handoff protocol:
//  1. both devices must be connected, else ErrDeviceUnavailable and no
//     mutation;
//  2. the context patch is merged, request keys winning;
//  3. active device and context are installed in one store mutation;
//  4. handoff_received goes to the target, handoff_completed to the source.
func (c *HandoffCoordinator) Request(ctx context.Context, userID string, req domain.HandoffRequest) (domain.HandoffResult, error) {
	if err := c.checkConnected(userID, req); err != nil {
		return domain.HandoffResult{}, err
	}
	return c.commit(ctx, userID, req)
}

// RequestWithAck asks the target to confirm readiness before committing.
// It emits handoff_incoming to the target and waits for Acknowledge up to
// ackTimeout; expiry aborts the transfer with ErrHandoffTimeout and zero
// mutation.
func (c *HandoffCoordinator) RequestWithAck(ctx context.Context, userID string, req domain.HandoffRequest, ackTimeout time.Duration) (domain.HandoffResult, error) {
	if err := c.checkConnected(userID, req); err != nil {
		return domain.HandoffResult{}, err
	}

	key := ackKey{userID: userID, deviceID: req.ToDeviceID, conversationID: req.ConversationID}
	ack := make(chan struct{}, 1)

	// One pending transfer per (user, target, conversation). A second
	// request would otherwise steal the first one's ack channel.
	c.mu.Lock()
	if _, exists := c.pending[key]; exists {
		c.mu.Unlock()
		err := fmt.Errorf("%w: handoff already pending for conversation %s", syncerrors.ErrInvalidMessage, req.ConversationID)
		c.fail(userID, req, err)
		return domain.HandoffResult{}, err
	}
	c.pending[key] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	target := c.registry.SinkForDevice(userID, req.ToDeviceID)
	if target == nil {
		c.fail(userID, req, syncerrors.ErrDeviceUnavailable)
		return domain.HandoffResult{}, syncerrors.ErrDeviceUnavailable
	}
	if err := target.Consume(ctx, event.HandoffIncoming{
		UserID:         userID,
		ConversationID: req.ConversationID,
		FromDeviceID:   req.FromDeviceID,
		ToDeviceID:     req.ToDeviceID,
		At:             time.Now().UTC(),
	}); err != nil {
		c.fail(userID, req, err)
		return domain.HandoffResult{}, syncerrors.ErrDeviceUnavailable
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case <-ack:
	case <-timer.C:
		c.fail(userID, req, syncerrors.ErrHandoffTimeout)
		return domain.HandoffResult{}, syncerrors.ErrHandoffTimeout
	case <-ctx.Done():
		c.fail(userID, req, ctx.Err())
		return domain.HandoffResult{}, ctx.Err()
	}

	return c.commit(ctx, userID, req)
}

// Acknowledge resolves a pending handoff_incoming wait. Called by the
// gateway when the target device replies handoff_ack. Unsolicited acks are
// ignored.
func (c *HandoffCoordinator) Acknowledge(userID, deviceID, conversationID string) {
	key := ackKey{userID: userID, deviceID: deviceID, conversationID: conversationID}

	c.mu.Lock()
	ack, ok := c.pending[key]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ack <- struct{}{}:
	default:
	}
}

func (c *HandoffCoordinator) checkConnected(userID string, req domain.HandoffRequest) error {
	if !c.registry.IsDeviceConnected(req.FromDeviceID) || !c.registry.IsDeviceConnected(req.ToDeviceID) {
		c.fail(userID, req, syncerrors.ErrDeviceUnavailable)
		return syncerrors.ErrDeviceUnavailable
	}
	return nil
}

func (c *HandoffCoordinator) commit(ctx context.Context, userID string, req domain.HandoffRequest) (domain.HandoffResult, error) {
	state, ok := c.store.CommitHandoff(userID, req.ConversationID, req.ToDeviceID, req.ContextPatch)
	if !ok {
		err := fmt.Errorf("%w: unknown conversation %s", syncerrors.ErrInvalidMessage, req.ConversationID)
		c.fail(userID, req, err)
		return domain.HandoffResult{}, err
	}

	now := time.Now().UTC()
	if target := c.registry.SinkForDevice(userID, req.ToDeviceID); target != nil {
		if err := target.Consume(ctx, event.HandoffReceived{
			UserID:         userID,
			ConversationID: req.ConversationID,
			FromDeviceID:   req.FromDeviceID,
			Context:        state.Context,
			At:             now,
		}); err != nil {
			c.log.Warn("handoff_received delivery failed",
				"user_id", userID, "device_id", req.ToDeviceID, "conversation_id", req.ConversationID, "error", err)
		}
	}
	if source := c.registry.SinkForDevice(userID, req.FromDeviceID); source != nil {
		if err := source.Consume(ctx, event.HandoffCompleted{
			UserID:         userID,
			ConversationID: req.ConversationID,
			ToDeviceID:     req.ToDeviceID,
			At:             now,
		}); err != nil {
			c.log.Warn("handoff_completed delivery failed",
				"user_id", userID, "device_id", req.FromDeviceID, "conversation_id", req.ConversationID, "error", err)
		}
	}

	c.metrics.IncrHandoffsSucceeded()
	c.log.Info("handoff committed",
		"user_id", userID,
		"conversation_id", req.ConversationID,
		"from_device", req.FromDeviceID,
		"to_device", req.ToDeviceID)

	return domain.HandoffResult{
		ConversationID: req.ConversationID,
		FromDeviceID:   req.FromDeviceID,
		ToDeviceID:     req.ToDeviceID,
		Context:        state.Context,
	}, nil
}

func (c *HandoffCoordinator) fail(userID string, req domain.HandoffRequest, err error) {
	c.metrics.IncrHandoffsFailed()
	c.log.Warn("handoff aborted",
		"user_id", userID,
		"conversation_id", req.ConversationID,
		"from_device", req.FromDeviceID,
		"to_device", req.ToDeviceID,
		"error", err)
}
