package rest

// Authentication types

// LoginRequest is the request body for session login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse contains the bearer token returned after login.
type TokenResponse struct {
	Token string `json:"token"`
}

// Directory types

// DirectoryEntry is one user as the directory endpoint returns it.
type DirectoryEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Chat history types

// HistoryMessage is one persisted message. Seen is the raw three-level
// read receipt: 0 unseen, 1 delivered, 2 seen.
type HistoryMessage struct {
	Text     string `json:"text"`
	SenderID string `json:"sender_id"`
	Time     string `json:"time"`
	Seen     int    `json:"seen"`
}

// AppendMessageRequest is the request body for persisting one message.
type AppendMessageRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
	Time        string `json:"time"`
	Seen        int    `json:"seen"`
}

// SeenRequest marks all of senderId's messages to recipientId as seen.
type SeenRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
