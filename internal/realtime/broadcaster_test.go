package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource is an in-memory Source that counts fetches.
type memSource struct {
	mu         sync.Mutex
	entries    []models.QueueEntry
	calls      []models.CallRecord
	entryReads int
	callReads  int
	fail       error
}

func (m *memSource) ListByStatus(_ context.Context, statuses ...models.Status) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryReads++
	if m.fail != nil {
		return nil, m.fail
	}
	var out []models.QueueEntry
	for _, e := range m.entries {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *memSource) LatestCalls(_ context.Context, n int) ([]models.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callReads++
	if m.fail != nil {
		return nil, m.fail
	}
	if n > len(m.calls) {
		n = len(m.calls)
	}
	return append([]models.CallRecord(nil), m.calls[:n]...), nil
}

func (m *memSource) add(e models.QueueEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

func (m *memSource) call(id string) {
	m.mu.Lock()
	m.calls = append([]models.CallRecord{{ID: id, Ticket: id}}, m.calls...)
	m.mu.Unlock()
}

func (m *memSource) reads() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryReads, m.callReads
}

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func assertQuiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case snap := <-sub.C:
		t.Fatalf("unexpected snapshot %+v", snap)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSubscribe_InitialSnapshot(t *testing.T) {
	src := &memSource{}
	src.add(models.QueueEntry{ID: "a", Status: models.StatusWaiting})
	src.add(models.QueueEntry{ID: "b", Status: models.StatusInService})
	b := NewBroadcaster(src, 0)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)
	require.Len(t, sub.Initial.Entries, 1)
	assert.Equal(t, "a", sub.Initial.Entries[0].ID)
	assertQuiet(t, sub)
}

func TestSubscribe_RejectsBadQuery(t *testing.T) {
	b := NewBroadcaster(&memSource{}, 0)
	defer b.Close()

	_, err := b.Subscribe(context.Background(), EntriesQuery())
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = b.Subscribe(context.Background(), EntriesQuery("parked"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = b.Subscribe(context.Background(), CallsQuery(0))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestNotify_RedeliversFullSnapshot(t *testing.T) {
	src := &memSource{}
	b := NewBroadcaster(src, 0)
	defer b.Close()

	first, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)
	second, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)

	src.add(models.QueueEntry{ID: "a", Status: models.StatusWaiting})
	b.Notify(TopicQueue)
	src.add(models.QueueEntry{ID: "b", Status: models.StatusWaiting})
	b.Notify(TopicQueue)

	// latest-wins: the unread snapshot was replaced
	for _, sub := range []*Subscription{first, second} {
		snap := receive(t, sub)
		assert.Len(t, snap.Entries, 2)
		assertQuiet(t, sub)
	}
}

func TestNotify_OnlyAffectedTopics(t *testing.T) {
	src := &memSource{}
	b := NewBroadcaster(src, 0)
	defer b.Close()

	panel, err := b.Subscribe(context.Background(), CallsQuery(5))
	require.NoError(t, err)
	queue, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)

	src.call("c1")
	b.Notify(TopicCalls)

	snap := receive(t, panel)
	require.Len(t, snap.Calls, 1)
	assertQuiet(t, queue)
}

func TestNotify_SharedQueryFetchedOnce(t *testing.T) {
	src := &memSource{}
	b := NewBroadcaster(src, 0)
	defer b.Close()

	for i := 0; i < 5; i++ {
		_, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting, models.StatusPending))
		require.NoError(t, err)
	}
	// same query, statuses in another order
	_, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusPending, models.StatusWaiting))
	require.NoError(t, err)

	entryReads, _ := src.reads()
	assert.Equal(t, 1, entryReads, "initial snapshot is cached")

	b.Notify(TopicQueue)
	entryReads, _ = src.reads()
	assert.Equal(t, 2, entryReads)
	assert.Equal(t, 6, b.Subscribers())
}

func TestNotify_DebounceCoalesces(t *testing.T) {
	src := &memSource{}
	b := NewBroadcaster(src, 20*time.Millisecond)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		src.add(models.QueueEntry{ID: string(rune('a' + i)), Status: models.StatusWaiting})
		b.Notify(TopicQueue)
	}

	snap := receive(t, sub)
	assert.Len(t, snap.Entries, 10)
	entryReads, _ := src.reads()
	assert.Equal(t, 2, entryReads)
}

func TestNotify_FetchErrorKeepsSubscribers(t *testing.T) {
	src := &memSource{}
	b := NewBroadcaster(src, 0)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), EntriesQuery(models.StatusWaiting))
	require.NoError(t, err)

	src.mu.Lock()
	src.fail = errors.New("database away")
	src.mu.Unlock()
	b.Notify(TopicQueue)
	assertQuiet(t, sub)

	src.mu.Lock()
	src.fail = nil
	src.mu.Unlock()
	src.add(models.QueueEntry{ID: "a", Status: models.StatusWaiting})
	b.Notify(TopicQueue)
	assert.Len(t, receive(t, sub).Entries, 1)
}

func TestCancel_ClosesChannel(t *testing.T) {
	b := NewBroadcaster(&memSource{}, 0)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), CallsQuery(5))
	require.NoError(t, err)
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	b.Notify(TopicCalls)
}

func TestCancel_OnContextDone(t *testing.T) {
	b := NewBroadcaster(&memSource{}, 0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, CallsQuery(5))
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestClose_RejectsNewSubscribers(t *testing.T) {
	b := NewBroadcaster(&memSource{}, 0)
	sub, err := b.Subscribe(context.Background(), CallsQuery(5))
	require.NoError(t, err)

	b.Close()
	_, ok := <-sub.C
	assert.False(t, ok)

	_, err = b.Subscribe(context.Background(), CallsQuery(5))
	assert.True(t, apperr.Is(err, apperr.KindTransient))
}
