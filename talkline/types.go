package talkline

import "encoding/json"

const (
	ProtocolVersion = 1

	inboundRegister = "register"
	inboundPrivate  = "send-private-message"

	outboundEvent = "event"
	outboundError = "error"

	eventReceiveMessage = "receive-message"
	eventUserList       = "user-list"
)

// Inbound represents the envelope from client to server.
type Inbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Outbound is the envelope server -> client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// RegisterPayload announces the local user on the live channel.
// Sent right after connect and after every reconnect.
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// PrivatePayload carries one direct message to another user.
type PrivatePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// Error describes a protocol error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
