package talkline

// MessageEvent emitted when another user sends a direct message.
// The live payload does not identify the sender; attribution is the
// engine's job (a message always belongs to the open conversation).
type MessageEvent struct {
	Text string `json:"text"`
	Time string `json:"time,omitempty"`
}

// PresenceEvent carries a full snapshot of online user ids.
// It replaces any prior snapshot, it is never a diff.
type PresenceEvent struct {
	UserIDs []string `json:"ids"`
}
