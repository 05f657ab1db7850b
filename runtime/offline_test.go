package runtime

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"devicesync/domain"
)

func note(text string) domain.SyncMessage {
	return domain.SyncMessage{
		ID:      uuid.New(),
		Type:    "note",
		Payload: map[string]any{"text": text},
	}
}

func TestOfflineQueue_DrainPreservesOrder(t *testing.T) {
	req := require.New(t)
	queue := NewOfflineQueue(10)

	// Given three messages queued for an offline device
	queue.Enqueue("dev-1", note("first"))
	queue.Enqueue("dev-1", note("second"))
	queue.Enqueue("dev-1", note("third"))
	req.Equal(3, queue.Len("dev-1"))

	// When draining
	drained := queue.Drain("dev-1")

	// Then order is preserved and the queue is empty
	req.Len(drained, 3)
	req.Equal("first", drained[0].Payload["text"])
	req.Equal("second", drained[1].Payload["text"])
	req.Equal("third", drained[2].Payload["text"])
	req.Zero(queue.Len("dev-1"))
	req.Nil(queue.Drain("dev-1"))
}

func TestOfflineQueue_OverflowEvictsOldest(t *testing.T) {
	req := require.New(t)
	queue := NewOfflineQueue(3)

	// Given a full queue
	for i := 1; i <= 3; i++ {
		queue.Enqueue("dev-1", note(fmt.Sprintf("msg-%d", i)))
	}

	// When two more arrive
	queue.Enqueue("dev-1", note("msg-4"))
	queue.Enqueue("dev-1", note("msg-5"))

	// Then the two oldest are gone and order among survivors holds
	drained := queue.Drain("dev-1")
	req.Len(drained, 3)
	req.Equal("msg-3", drained[0].Payload["text"])
	req.Equal("msg-4", drained[1].Payload["text"])
	req.Equal("msg-5", drained[2].Payload["text"])
}

func TestOfflineQueue_QueuesAreIsolatedPerDevice(t *testing.T) {
	req := require.New(t)
	queue := NewOfflineQueue(2)

	queue.Enqueue("dev-1", note("for one"))
	queue.Enqueue("dev-2", note("for two"))

	req.Equal(1, queue.Len("dev-1"))
	req.Equal(1, queue.Len("dev-2"))

	drained := queue.Drain("dev-1")
	req.Len(drained, 1)
	req.Equal("for one", drained[0].Payload["text"])
	req.Equal(1, queue.Len("dev-2"))
}

func TestOfflineQueue_Depths(t *testing.T) {
	req := require.New(t)
	queue := NewOfflineQueue(10)

	queue.Enqueue("dev-1", note("a"))
	queue.Enqueue("dev-1", note("b"))
	queue.Enqueue("dev-2", note("c"))

	req.Equal(map[string]int{"dev-1": 2, "dev-2": 1}, queue.Depths())
}

func TestOfflineQueue_MinimumCapacityIsOne(t *testing.T) {
	req := require.New(t)
	queue := NewOfflineQueue(0)

	queue.Enqueue("dev-1", note("a"))
	queue.Enqueue("dev-1", note("b"))

	drained := queue.Drain("dev-1")
	req.Len(drained, 1)
	req.Equal("b", drained[0].Payload["text"])
}
