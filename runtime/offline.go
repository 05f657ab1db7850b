package runtime

import (
	"sync"

	"devicesync/domain"
)

// OfflineQueue buffers messages addressed to devices that are not
// currently connected. Each device gets a bounded FIFO; on overflow the
// oldest entry is evicted. Queues are keyed per device, so no cross-device
// locking is needed beyond the map itself.
type OfflineQueue struct {
	mu       sync.Mutex
	capacity int
	queues   map[string][]domain.SyncMessage
}

func NewOfflineQueue(capacity int) *OfflineQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &OfflineQueue{
		capacity: capacity,
		queues:   make(map[string][]domain.SyncMessage),
	}
}

// Enqueue appends to the device's FIFO, evicting the oldest entry when
// the queue is at capacity.
func (q *OfflineQueue) Enqueue(deviceID string, message domain.SyncMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[deviceID]
	if len(queue) >= q.capacity {
		queue = queue[1:]
	}
	q.queues[deviceID] = append(queue, message)
}

// Drain returns all queued messages for a device in original order and
// clears the queue. If delivery of the returned batch is interrupted by
// another disconnect, the remainder is lost; that limitation is accepted.
func (q *OfflineQueue) Drain(deviceID string) []domain.SyncMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, ok := q.queues[deviceID]
	if !ok {
		return nil
	}
	delete(q.queues, deviceID)
	return queue
}

// Len reports the queue depth for one device.
func (q *OfflineQueue) Len(deviceID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[deviceID])
}

// Depths snapshots every non-empty queue depth, for metrics reporting.
func (q *OfflineQueue) Depths() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]int, len(q.queues))
	for deviceID, queue := range q.queues {
		out[deviceID] = len(queue)
	}
	return out
}
