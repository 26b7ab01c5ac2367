package talkline

import (
	"context"
	"strings"
	"sync"
	"time"
)

// EnginePhase is the conversation lifecycle state.
type EnginePhase int

const (
	// PhaseIdle means no recipient is selected.
	PhaseIdle EnginePhase = iota

	// PhaseLoading means a history fetch is in flight for a newly
	// selected recipient.
	PhaseLoading

	// PhaseActive means history is loaded and live events apply.
	PhaseActive
)

// String returns the string representation of an EnginePhase.
func (p EnginePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// HistoryStore is the persistence collaborator: the durable record of
// messages and seen-state, reached over request/response.
type HistoryStore interface {
	ListUsers(ctx context.Context) ([]DirectoryEntry, error)
	FetchHistory(ctx context.Context, userID, otherUserID string) ([]Message, error)
	AppendMessage(ctx context.Context, req AppendRequest) error
	MarkSeen(ctx context.Context, senderID, recipientID string) error
}

// LiveSender is the outbound half of the live channel the engine
// depends on. *Client satisfies it.
type LiveSender interface {
	SendPrivate(ctx context.Context, to, text, timestamp string) error
	Close() error
}

// Snapshot is a read-only copy of engine state for rendering. UI
// adapters only ever see snapshots; they never touch engine state.
type Snapshot struct {
	Phase        EnginePhase
	Recipient    string
	Conversation []Message
	Roster       []RosterEntry
	Focused      bool
	Err          error
}

// Engine is the per-session chat synchronization state machine. It
// merges live-channel events with history-store results, owns
// seen-state transitions, and guards every blocking completion with a
// generation check so a superseded operation can never mutate state.
//
// All mutation happens under one mutex: the engine is a single-writer
// machine no matter how many goroutines deliver events into it.
type Engine struct {
	localID string
	store   HistoryStore
	live    LiveSender
	logger  Logger
	now     func() time.Time

	mu           sync.Mutex
	phase        EnginePhase
	recipient    string
	gen          uint64
	conversation []Message
	directory    []DirectoryEntry
	presence     PresenceSet
	focused      bool
	lastErr      error
	closed       bool
	onUpdate     func()
}

// NewEngine constructs an engine for one local user. live may be nil
// for history-only (degraded) mode.
func NewEngine(localID string, store HistoryStore, live LiveSender) *Engine {
	return &Engine{
		localID:  localID,
		store:    store,
		live:     live,
		logger:   noopLogger{},
		now:      time.Now,
		presence: PresenceSet{},
	}
}

// SetLogger overrides logger (optional).
func (e *Engine) SetLogger(l Logger) {
	if l == nil {
		return
	}
	e.logger = l
}

// OnUpdate registers a callback invoked after every state change.
// Called outside the engine lock; the callback should grab a Snapshot.
func (e *Engine) OnUpdate(fn func()) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// LocalID returns the local user id the engine was built for.
func (e *Engine) LocalID() string { return e.localID }

// Snapshot returns a copy of the current state for rendering.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv := make([]Message, len(e.conversation))
	copy(conv, e.conversation)
	return Snapshot{
		Phase:        e.phase,
		Recipient:    e.recipient,
		Conversation: conv,
		Roster:       ProjectRoster(e.directory, e.presence, e.localID),
		Focused:      e.focused,
		Err:          e.lastErr,
	}
}

// Err returns the last transient failure, cleared by the next
// successful fetch.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// LoadDirectory fetches the user directory. The local user is
// filtered out; order is preserved as the store returned it.
func (e *Engine) LoadDirectory(ctx context.Context) error {
	users, err := e.store.ListUsers(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		ferr := WrapError(ErrorFetch, "user list failed", err)
		e.lastErr = ferr
		e.mu.Unlock()
		e.notify()
		return ferr
	}
	filtered := make([]DirectoryEntry, 0, len(users))
	for _, u := range users {
		if u.ID == e.localID {
			continue
		}
		filtered = append(filtered, u)
	}
	e.directory = filtered
	e.lastErr = nil
	e.mu.Unlock()
	e.notify()
	return nil
}

// SelectRecipient opens the conversation with id. Selecting the
// current recipient is a no-op. Any in-flight load for a previous
// recipient is superseded: its result is discarded when it lands.
// After a successful load the new recipient's backlog is marked seen,
// which is what opening a conversation means.
func (e *Engine) SelectRecipient(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return NewError(ErrorDisconnected, "engine closed")
	}
	if id == e.recipient && !(e.phase == PhaseLoading && e.lastErr != nil) {
		// Same recipient and nothing to repair: no-op. A failed load
		// stays in Loading with the error flag set, and reselecting
		// the same id is the retry path.
		e.mu.Unlock()
		return nil
	}
	e.gen++
	gen := e.gen
	e.recipient = id
	e.phase = PhaseLoading
	e.conversation = nil
	e.mu.Unlock()
	e.notify()

	msgs, err := e.store.FetchHistory(ctx, e.localID, id)

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil // superseded
	}
	if err != nil {
		ferr := WrapError(ErrorFetch, "history fetch failed", err)
		e.lastErr = ferr
		e.mu.Unlock()
		e.notify()
		return ferr
	}
	e.conversation = msgs
	e.phase = PhaseActive
	e.lastErr = nil
	e.mu.Unlock()
	e.notify()

	if err := e.store.MarkSeen(ctx, id, e.localID); err != nil {
		e.logger.Warn("mark seen failed", map[string]any{"sender": id, "error": err.Error()})
	}
	return nil
}

// ReceiveLive handles one inbound live message. Always appended, even
// when the sender's conversation is not the open one; a message is
// attributed to the active recipient when one is set. When the open
// conversation matches and the window has focus, the whole backlog
// from that sender is marked seen and the conversation is reconciled
// from the store, since seen-marking is sender-scoped.
func (e *Engine) ReceiveLive(ctx context.Context, text, stamp string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if stamp == "" {
		stamp = ClockStamp(e.now())
	}
	e.conversation = append(e.conversation, Message{
		Text:     text,
		SenderID: e.recipient,
		Time:     stamp,
		Seen:     Unseen,
	})
	gen := e.gen
	recipient := e.recipient
	reconcile := e.recipient != "" && e.phase == PhaseActive && e.focused
	e.mu.Unlock()
	e.notify()

	if !reconcile {
		return
	}
	if err := e.store.MarkSeen(ctx, recipient, e.localID); err != nil {
		e.logger.Warn("mark seen failed", map[string]any{"sender": recipient, "error": err.Error()})
		return
	}
	e.reload(ctx, gen, recipient)
}

// ComposeAndSend validates, emits the message over the live channel,
// persists it, and appends it optimistically. The live emit is
// at-most-once: a failed emit is logged, not retried, because the
// history store is the durability source of truth. A failed persist
// surfaces an error but does not roll back the optimistic append; the
// next reconciliation fetch is authoritative.
func (e *Engine) ComposeAndSend(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return NewError(ErrorDisconnected, "engine closed")
	}
	if e.recipient == "" {
		e.mu.Unlock()
		return NewError(ErrorValidation, "no recipient selected")
	}
	if trimmed == "" {
		e.mu.Unlock()
		return NewError(ErrorValidation, "empty message")
	}
	gen := e.gen
	recipient := e.recipient
	stamp := ClockStamp(e.now())
	seen := Unseen
	if e.presence.Contains(recipient) {
		seen = Delivered
	}
	e.mu.Unlock()

	if e.live != nil {
		if err := e.live.SendPrivate(ctx, recipient, trimmed, stamp); err != nil {
			e.logger.Warn("live send failed", map[string]any{"to": recipient, "error": err.Error()})
		}
	}

	perr := e.store.AppendMessage(ctx, AppendRequest{
		SenderID:    e.localID,
		RecipientID: recipient,
		Text:        trimmed,
		Time:        stamp,
		Seen:        seen,
	})

	e.mu.Lock()
	if gen == e.gen {
		e.conversation = append(e.conversation, Message{
			Text:     trimmed,
			SenderID: e.localID,
			Time:     stamp,
			Seen:     seen,
		})
	}
	var ferr error
	if perr != nil {
		ferr = WrapError(ErrorFetch, "persist failed", perr)
		e.lastErr = ferr
	}
	e.mu.Unlock()
	e.notify()
	return ferr
}

// SetFocus records window focus. Gaining focus with an open
// conversation marks the peer's messages seen and reconciles from the
// store; this is how the other side's read receipts advance without a
// push channel for seen-state.
func (e *Engine) SetFocus(ctx context.Context, focused bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	gained := focused && !e.focused
	e.focused = focused
	gen := e.gen
	recipient := e.recipient
	active := e.phase == PhaseActive && recipient != ""
	e.mu.Unlock()

	if !gained || !active {
		return
	}
	if err := e.store.MarkSeen(ctx, recipient, e.localID); err != nil {
		e.logger.Warn("mark seen failed", map[string]any{"sender": recipient, "error": err.Error()})
		return
	}
	e.reload(ctx, gen, recipient)
}

// SetPresence replaces the presence set from a snapshot. Wholesale
// replacement; the local id is excluded.
func (e *Engine) SetPresence(ids []string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.presence = NewPresenceSet(ids, e.localID)
	e.mu.Unlock()
	e.notify()
}

// ConnectionReset clears presence after a reconnect. Stale presence is
// never assumed valid; the set stays empty until the next snapshot.
func (e *Engine) ConnectionReset() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.presence = PresenceSet{}
	e.mu.Unlock()
	e.notify()
}

// Close tears down the engine and the live channel it owns.
// Idempotent; in-flight completions land on a bumped generation and
// are discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.gen++
	e.phase = PhaseIdle
	e.recipient = ""
	e.conversation = nil
	e.presence = PresenceSet{}
	live := e.live
	e.mu.Unlock()

	if live != nil {
		return live.Close()
	}
	return nil
}

// BindChannel wires a live channel client into the engine: messages,
// presence snapshots, and the presence reset on reconnect.
func (e *Engine) BindChannel(c *Client) {
	c.OnMessage(func(ev MessageEvent) {
		e.ReceiveLive(context.Background(), ev.Text, ev.Time)
	})
	c.OnPresence(func(ev PresenceEvent) {
		e.SetPresence(ev.UserIDs)
	})
	c.OnStateChanged(func(ev StateEvent) {
		if ev.OldState == StateReconnecting && ev.NewState == StateConnected {
			e.ConnectionReset()
		}
	})
	c.OnError(func(err error) {
		e.logger.Warn("live channel error", map[string]any{"error": err.Error()})
	})
}

// reload replaces the conversation wholesale from the store, unless
// the selection generation moved on while the fetch was in flight.
func (e *Engine) reload(ctx context.Context, gen uint64, recipient string) {
	msgs, err := e.store.FetchHistory(ctx, e.localID, recipient)

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.lastErr = WrapError(ErrorFetch, "history fetch failed", err)
		e.mu.Unlock()
		e.notify()
		return
	}
	e.conversation = msgs
	e.lastErr = nil
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	e.mu.Lock()
	fn := e.onUpdate
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}
