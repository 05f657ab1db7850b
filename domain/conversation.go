package domain

import "maps"

// ConversationKey addresses exactly one ConversationState.
type ConversationKey struct {
	UserID         string
	ConversationID string
}

// ConversationState is the authoritative record of which device currently
// owns a conversation and the context that travels with it. At most one
// instance exists per key; it lives only for the process lifetime.
type ConversationState struct {
	ActiveDeviceID string
	LastMessage    any
	Participants   []string
	Context        map[string]string
}

// StatePatch is a partial update applied to a ConversationState.
// Nil fields are left untouched.
type StatePatch struct {
	ActiveDeviceID *string
	LastMessage    any
	Participants   []string
	Context        map[string]string
}

// Apply merges the patch into the state: shallow replacement for every
// field except Context, which merges key by key with patch keys winning.
func (s *ConversationState) Apply(patch StatePatch) {
	if patch.ActiveDeviceID != nil {
		s.ActiveDeviceID = *patch.ActiveDeviceID
	}
	if patch.LastMessage != nil {
		s.LastMessage = patch.LastMessage
	}
	if patch.Participants != nil {
		s.Participants = patch.Participants
	}
	if patch.Context != nil {
		if s.Context == nil {
			s.Context = make(map[string]string, len(patch.Context))
		}
		maps.Copy(s.Context, patch.Context)
	}
}

// Clone returns a deep enough copy for handing state to other goroutines:
// Participants and Context are copied, LastMessage stays shared (opaque).
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.Participants != nil {
		out.Participants = append([]string(nil), s.Participants...)
	}
	if s.Context != nil {
		out.Context = maps.Clone(s.Context)
	}
	return out
}

// MergeContext combines a conversation context with a handoff patch.
// Patch keys win on conflict; neither input is mutated.
func MergeContext(current, patch map[string]string) map[string]string {
	merged := make(map[string]string, len(current)+len(patch))
	maps.Copy(merged, current)
	maps.Copy(merged, patch)
	return merged
}
