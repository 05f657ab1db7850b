package domain

// HandoffRequest asks the coordinator to move conversation ownership from
// one connected device to another. ContextPatch is merged into the
// conversation context, request keys winning on conflict.
type HandoffRequest struct {
	FromDeviceID   string
	ToDeviceID     string
	ConversationID string
	ContextPatch   map[string]string
}

// HandoffResult reports a committed handoff back to the caller.
type HandoffResult struct {
	ConversationID string
	FromDeviceID   string
	ToDeviceID     string
	Context        map[string]string
}
