package talkline

import (
	"context"

	"github.com/talkline/talkline-go/talkline/rest"
)

// RESTStore adapts the rest package client to the engine's
// HistoryStore interface, converting wire types to domain types.
type RESTStore struct {
	c *rest.Client
}

// NewRESTStore wraps a REST client as a HistoryStore.
func NewRESTStore(c *rest.Client) *RESTStore {
	return &RESTStore{c: c}
}

func (s *RESTStore) ListUsers(ctx context.Context) ([]DirectoryEntry, error) {
	users, err := s.c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]DirectoryEntry, len(users))
	for i, u := range users {
		entries[i] = DirectoryEntry{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return entries, nil
}

func (s *RESTStore) FetchHistory(ctx context.Context, userID, otherUserID string) ([]Message, error) {
	history, err := s.c.FetchHistory(ctx, userID, otherUserID)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(history))
	for i, m := range history {
		msgs[i] = Message{
			Text:     m.Text,
			SenderID: m.SenderID,
			Time:     m.Time,
			Seen:     SeenState(m.Seen),
		}
	}
	return msgs, nil
}

func (s *RESTStore) AppendMessage(ctx context.Context, req AppendRequest) error {
	return s.c.AppendMessage(ctx, rest.AppendMessageRequest{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Text:        req.Text,
		Time:        req.Time,
		Seen:        int(req.Seen),
	})
}

func (s *RESTStore) MarkSeen(ctx context.Context, senderID, recipientID string) error {
	return s.c.MarkSeen(ctx, senderID, recipientID)
}
