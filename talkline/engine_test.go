package talkline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory HistoryStore. Conversations are keyed by
// the unordered user pair; MarkSeen advances seen-state and counts
// actual changes so idempotence is observable.
type fakeStore struct {
	mu         sync.Mutex
	users      []DirectoryEntry
	pairs      map[string][]Message
	fetchDelay map[string]time.Duration // keyed by other-user id
	fetchCalls int
	seenCalls  int
	seenWrites int
	failList   error
	failFetch  error
	failAppend error
	failSeen   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pairs:      map[string][]Message{},
		fetchDelay: map[string]time.Duration{},
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (f *fakeStore) put(a, b string, msgs ...Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(a, b)
	f.pairs[key] = append(f.pairs[key], msgs...)
}

func (f *fakeStore) ListUsers(context.Context) ([]DirectoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	return append([]DirectoryEntry(nil), f.users...), nil
}

func (f *fakeStore) FetchHistory(_ context.Context, userID, otherUserID string) ([]Message, error) {
	f.mu.Lock()
	delay := f.fetchDelay[otherUserID]
	f.fetchCalls++
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch != nil {
		return nil, f.failFetch
	}
	return append([]Message(nil), f.pairs[pairKey(userID, otherUserID)]...), nil
}

func (f *fakeStore) AppendMessage(_ context.Context, req AppendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend != nil {
		return f.failAppend
	}
	key := pairKey(req.SenderID, req.RecipientID)
	f.pairs[key] = append(f.pairs[key], Message{
		Text:     req.Text,
		SenderID: req.SenderID,
		Time:     req.Time,
		Seen:     req.Seen,
	})
	return nil
}

func (f *fakeStore) MarkSeen(_ context.Context, senderID, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenCalls++
	if f.failSeen != nil {
		return f.failSeen
	}
	msgs := f.pairs[pairKey(senderID, recipientID)]
	for i := range msgs {
		if msgs[i].SenderID == senderID && msgs[i].Seen < Seen {
			msgs[i].Seen = Seen
			f.seenWrites++
		}
	}
	return nil
}

type fakeLive struct {
	mu       sync.Mutex
	sent     []PrivatePayload
	failSend error
	closed   bool
}

func (f *fakeLive) SendPrivate(_ context.Context, to, text, timestamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return f.failSend
	}
	f.sent = append(f.sent, PrivatePayload{To: to, Message: text, Time: timestamp})
	return nil
}

func (f *fakeLive) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestEngine(store *fakeStore, live *fakeLive) *Engine {
	var sender LiveSender
	if live != nil {
		sender = live
	}
	e := NewEngine("u1", store, sender)
	e.now = func() time.Time {
		return time.Date(2025, 6, 1, 14, 30, 5, 120*int(time.Millisecond), time.UTC)
	}
	return e
}

func TestSelectRecipientSupersedesSlowFetch(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "old from u2", SenderID: "u2", Time: "10:00:00.000"})
	store.put("u1", "u3", Message{Text: "from u3", SenderID: "u3", Time: "11:00:00.000"})
	store.fetchDelay["u2"] = 100 * time.Millisecond

	e := newTestEngine(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.SelectRecipient(ctx, "u2")
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.SelectRecipient(ctx, "u3"))
	wg.Wait()

	snap := e.Snapshot()
	assert.Equal(t, "u3", snap.Recipient)
	assert.Equal(t, PhaseActive, snap.Phase)
	require.Len(t, snap.Conversation, 1)
	assert.Equal(t, "from u3", snap.Conversation[0].Text)
}

func TestSelectRecipientSameIDNoOp(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	require.NoError(t, e.SelectRecipient(ctx, "u2"))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.fetchCalls)
}

func TestSelectRecipientRetryAfterFailure(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "hi", SenderID: "u2", Time: "10:00:00.000"})
	store.failFetch = errors.New("boom")

	e := newTestEngine(store, nil)
	ctx := context.Background()

	err := e.SelectRecipient(ctx, "u2")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	snap := e.Snapshot()
	assert.Equal(t, PhaseLoading, snap.Phase)
	assert.Error(t, snap.Err)

	store.mu.Lock()
	store.failFetch = nil
	store.mu.Unlock()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	snap = e.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.NoError(t, snap.Err)
	require.Len(t, snap.Conversation, 1)
}

func TestSelectRecipientMarksBacklogSeen(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2",
		Message{Text: "one", SenderID: "u2", Time: "10:00:00.000", Seen: Unseen},
		Message{Text: "two", SenderID: "u2", Time: "10:00:01.000", Seen: Delivered},
	)
	e := newTestEngine(store, nil)

	require.NoError(t, e.SelectRecipient(context.Background(), "u2"))

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, m := range store.pairs[pairKey("u1", "u2")] {
		assert.Equal(t, Seen, m.Seen)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "hi", SenderID: "u2", Time: "10:00:00.000", Seen: Unseen})
	ctx := context.Background()

	require.NoError(t, store.MarkSeen(ctx, "u2", "u1"))
	first := store.seenWrites
	require.NoError(t, store.MarkSeen(ctx, "u2", "u1"))

	assert.Equal(t, first, store.seenWrites, "second call must mark nothing new")
}

func TestComposeRoundTripNoDuplication(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	require.NoError(t, e.ComposeAndSend(ctx, "hi"))

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 1)
	assert.Equal(t, "hi", snap.Conversation[0].Text)

	// Focus-gained reconcile replaces the conversation from the store;
	// the optimistic append must be subsumed, not doubled.
	e.SetFocus(ctx, true)
	snap = e.Snapshot()
	require.Len(t, snap.Conversation, 1)
	assert.Equal(t, "hi", snap.Conversation[0].Text)
	assert.Equal(t, "u1", snap.Conversation[0].SenderID)
}

func TestComposeValidation(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	err := e.ComposeAndSend(ctx, "hello")
	require.Error(t, err)
	assert.True(t, IsValidationError(err), "no recipient selected")

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	err = e.ComposeAndSend(ctx, "   ")
	require.Error(t, err)
	assert.True(t, IsValidationError(err), "blank text")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.pairs[pairKey("u1", "u2")], "validation failures never reach the store")
}

func TestComposeSeenHeuristic(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))

	require.NoError(t, e.ComposeAndSend(ctx, "offline msg"))
	e.SetPresence([]string{"u2"})
	require.NoError(t, e.ComposeAndSend(ctx, "online msg"))

	store.mu.Lock()
	msgs := store.pairs[pairKey("u1", "u2")]
	store.mu.Unlock()
	require.Len(t, msgs, 2)
	assert.Equal(t, Unseen, msgs[0].Seen)
	assert.Equal(t, Delivered, msgs[1].Seen)

	live.mu.Lock()
	defer live.mu.Unlock()
	require.Len(t, live.sent, 2)
	assert.Equal(t, "u2", live.sent[0].To)
	assert.Equal(t, "14:30:05.120", live.sent[0].Time)
}

func TestComposePersistFailureKeepsOptimisticAppend(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	store.mu.Lock()
	store.failAppend = errors.New("db down")
	store.mu.Unlock()

	err := e.ComposeAndSend(ctx, "hello")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 1, "optimistic append survives persist failure")
	assert.Equal(t, "hello", snap.Conversation[0].Text)
	assert.Error(t, snap.Err)
}

func TestComposeLiveEmitFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{failSend: errors.New("channel gone")}
	e := newTestEngine(store, live)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	require.NoError(t, e.ComposeAndSend(ctx, "hello"))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.pairs[pairKey("u1", "u2")], 1, "persistence proceeds despite emit failure")
}

func TestReceiveLiveInactivePeerStillSurfaces(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	e.SetFocus(ctx, true)
	before := func() int {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.seenCalls
	}()
	e.ReceiveLive(ctx, "ping", "12:00:00.000")

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 1)
	assert.Equal(t, "ping", snap.Conversation[0].Text)
	assert.Equal(t, Unseen, snap.Conversation[0].Seen)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, before, store.seenCalls, "no conversation open, nothing to mark")
}

func TestReceiveLiveFocusedReconcilesWholeBacklog(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "earlier", SenderID: "u2", Time: "09:00:00.000", Seen: Delivered})
	e := newTestEngine(store, nil)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	e.SetFocus(ctx, true)

	// The peer persists before emitting; the refetch must fold the
	// live message in and show the whole backlog marked seen.
	store.put("u1", "u2", Message{Text: "new one", SenderID: "u2", Time: "12:00:00.000", Seen: Unseen})
	e.ReceiveLive(ctx, "new one", "12:00:00.000")

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 2)
	assert.Equal(t, Seen, snap.Conversation[0].Seen)
	assert.Equal(t, Seen, snap.Conversation[1].Seen)
}

func TestReceiveLiveUnfocusedDoesNotMark(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	store.mu.Lock()
	calls := store.seenCalls
	store.mu.Unlock()

	e.ReceiveLive(ctx, "hi", "12:00:00.000")

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 1)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, calls, store.seenCalls, "unfocused receive must not mark seen")
}

func TestOfflineThenOnlineSeenScenario(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	// u2 offline: message persists unseen.
	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	require.NoError(t, e.ComposeAndSend(ctx, "hello"))
	store.mu.Lock()
	require.Equal(t, Unseen, store.pairs[pairKey("u1", "u2")][0].Seen)
	store.mu.Unlock()

	// u2 comes online and replies while u1's window has focus.
	e.SetPresence([]string{"u2"})
	e.SetFocus(ctx, true)
	store.put("u1", "u2", Message{Text: "hi back", SenderID: "u2", Time: "12:00:01.000", Seen: Delivered})
	e.ReceiveLive(ctx, "hi back", "12:00:01.000")

	// u2's client acknowledges via its own focus cycle.
	require.NoError(t, store.MarkSeen(ctx, "u1", "u2"))

	// u1's next focus reconcile shows "hello" fully seen.
	e.SetFocus(ctx, false)
	e.SetFocus(ctx, true)
	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 2)
	assert.Equal(t, "hello", snap.Conversation[0].Text)
	assert.Equal(t, Seen, snap.Conversation[0].Seen)
}

func TestPresenceSnapshotReplacesWholesale(t *testing.T) {
	store := newFakeStore()
	store.users = []DirectoryEntry{
		{ID: "u1", Name: "Me"},
		{ID: "u2", Name: "Ann"},
		{ID: "u3", Name: "Bob"},
	}
	e := newTestEngine(store, nil)
	require.NoError(t, e.LoadDirectory(context.Background()))

	e.SetPresence([]string{"u2", "u3"})
	e.SetPresence([]string{"u3"})

	snap := e.Snapshot()
	require.Len(t, snap.Roster, 2)
	assert.False(t, snap.Roster[0].Active, "u2 dropped by the newer snapshot")
	assert.True(t, snap.Roster[1].Active)
}

func TestPresenceExcludesSelf(t *testing.T) {
	store := newFakeStore()
	store.users = []DirectoryEntry{{ID: "u1", Name: "Me"}, {ID: "u2", Name: "Ann"}}
	e := newTestEngine(store, nil)
	require.NoError(t, e.LoadDirectory(context.Background()))

	e.SetPresence([]string{"u1", "u2"})

	snap := e.Snapshot()
	require.Len(t, snap.Roster, 1)
	assert.Equal(t, "u2", snap.Roster[0].ID)
	assert.True(t, snap.Roster[0].Active)
}

func TestConnectionResetClearsPresence(t *testing.T) {
	store := newFakeStore()
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	e.SetPresence([]string{"u2"})
	e.ConnectionReset()

	require.NoError(t, e.ComposeAndSend(ctx, "after reset"))
	store.mu.Lock()
	defer store.mu.Unlock()
	msgs := store.pairs[pairKey("u1", "u2")]
	require.Len(t, msgs, 1)
	assert.Equal(t, Unseen, msgs[0].Seen, "stale presence must not count as online")
}

func TestCloseDiscardsInflightLoad(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "late", SenderID: "u2", Time: "10:00:00.000"})
	store.fetchDelay["u2"] = 50 * time.Millisecond
	live := &fakeLive{}
	e := newTestEngine(store, live)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.SelectRecipient(ctx, "u2")
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.Close())
	wg.Wait()

	snap := e.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Conversation)
	live.mu.Lock()
	defer live.mu.Unlock()
	assert.True(t, live.closed, "engine owns the channel and releases it")
}

func TestLoadDirectoryFiltersSelf(t *testing.T) {
	store := newFakeStore()
	store.users = []DirectoryEntry{
		{ID: "u2", Name: "Ann", Email: "ann@example.com"},
		{ID: "u1", Name: "Me", Email: "me@example.com"},
		{ID: "u3", Name: "Bob", Email: "bob@example.com"},
	}
	e := newTestEngine(store, nil)
	require.NoError(t, e.LoadDirectory(context.Background()))

	snap := e.Snapshot()
	require.Len(t, snap.Roster, 2)
	assert.Equal(t, "u2", snap.Roster[0].ID)
	assert.Equal(t, "u3", snap.Roster[1].ID)
}

func TestFocusGainedReconcilesSeenState(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "u2", Message{Text: "unread", SenderID: "u2", Time: "10:00:00.000", Seen: Unseen})
	e := newTestEngine(store, nil)
	ctx := context.Background()

	require.NoError(t, e.SelectRecipient(ctx, "u2"))
	// A new unseen message lands in the store while unfocused.
	store.put("u1", "u2", Message{Text: "while away", SenderID: "u2", Time: "10:05:00.000", Seen: Unseen})

	e.SetFocus(ctx, true)

	snap := e.Snapshot()
	require.Len(t, snap.Conversation, 2)
	for _, m := range snap.Conversation {
		assert.Equal(t, Seen, m.Seen)
	}
}

func TestUpdateCallbackFires(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)

	var mu sync.Mutex
	count := 0
	e.OnUpdate(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, e.SelectRecipient(context.Background(), "u2"))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 2, "loading and active transitions both notify")
}
