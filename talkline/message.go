package talkline

// SeenState is the three-level read receipt attached to a message.
// It only ever advances once persisted: Unseen -> Delivered -> Seen,
// or Unseen -> Seen directly.
type SeenState int

const (
	// Unseen means the recipient was offline when the message was sent.
	Unseen SeenState = iota

	// Delivered means the recipient was online at send time but has not
	// viewed the conversation. A heuristic, not a guarantee.
	Delivered

	// Seen means the recipient has viewed the conversation.
	Seen
)

// String returns the string representation of a SeenState.
func (s SeenState) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Delivered:
		return "delivered"
	case Seen:
		return "seen"
	default:
		return "unknown"
	}
}

// Message is one chat message as the engine holds it. Immutable once
// appended except for Seen, which advances via seen-marking.
type Message struct {
	Text     string
	SenderID string
	Time     string // HH:MM:SS.mmm wall clock, see ClockStamp
	Seen     SeenState
}

// DirectoryEntry is one user from the directory. Supplied externally,
// immutable for the engine's purposes.
type DirectoryEntry struct {
	ID    string
	Name  string
	Email string
}

// AppendRequest is the payload for persisting one message.
type AppendRequest struct {
	SenderID    string
	RecipientID string
	Text        string
	Time        string
	Seen        SeenState
}
