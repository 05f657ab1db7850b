package runtime

import (
	"hash/fnv"
	"sync"

	"devicesync/domain"
)

// stripeCount is a power of two so the hash can be masked.
const stripeCount = 32

// ConversationStore is the authoritative in-memory record of which device
// owns each conversation. Mutations addressed to the same
// (userID, conversationID) key are linearized through striped locks so a
// concurrent update and handoff commit cannot produce a lost update.
type ConversationStore struct {
	mu      sync.RWMutex
	states  map[domain.ConversationKey]*domain.ConversationState
	stripes [stripeCount]sync.Mutex
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		states: make(map[domain.ConversationKey]*domain.ConversationState),
	}
}

func (s *ConversationStore) stripe(key domain.ConversationKey) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.UserID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.ConversationID))
	return &s.stripes[h.Sum32()&(stripeCount-1)]
}

// Start creates or overwrites the keyed state and returns the stored copy.
func (s *ConversationStore) Start(userID, conversationID string, state domain.ConversationState) domain.ConversationState {
	key := domain.ConversationKey{UserID: userID, ConversationID: conversationID}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	stored := state.Clone()
	s.mu.Lock()
	s.states[key] = &stored
	s.mu.Unlock()
	return stored.Clone()
}

// Get returns a copy of the keyed state, if present.
func (s *ConversationStore) Get(userID, conversationID string) (domain.ConversationState, bool) {
	key := domain.ConversationKey{UserID: userID, ConversationID: conversationID}

	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok {
		return domain.ConversationState{}, false
	}
	return state.Clone(), true
}

// Update merges the patch into an existing state and returns the delta
// that was applied. Updating an absent key is a silent no-op reported by
// the second return value, so callers can skip the broadcast.
func (s *ConversationStore) Update(userID, conversationID string, patch domain.StatePatch) (domain.StatePatch, bool) {
	key := domain.ConversationKey{UserID: userID, ConversationID: conversationID}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	if !ok {
		return domain.StatePatch{}, false
	}

	state.Apply(patch)
	return patch, true
}

// End deletes the keyed state. Ending an absent key reports false.
func (s *ConversationStore) End(userID, conversationID string) bool {
	key := domain.ConversationKey{UserID: userID, ConversationID: conversationID}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[key]; !ok {
		return false
	}
	delete(s.states, key)
	return true
}

// CommitHandoff atomically installs the new active device and the merged
// context in a single mutation. It reports false without mutating when no
// state exists for the key.
func (s *ConversationStore) CommitHandoff(userID, conversationID, toDeviceID string, contextPatch map[string]string) (domain.ConversationState, bool) {
	key := domain.ConversationKey{UserID: userID, ConversationID: conversationID}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	if !ok {
		return domain.ConversationState{}, false
	}

	state.ActiveDeviceID = toDeviceID
	state.Context = domain.MergeContext(state.Context, contextPatch)
	return state.Clone(), true
}

// ActiveCount returns the number of live conversations for a user.
func (s *ConversationStore) ActiveCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.states {
		if key.UserID == userID {
			count++
		}
	}
	return count
}
