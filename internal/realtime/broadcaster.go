package realtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"

	"github.com/rs/zerolog/log"
)

// Topic - a family of data a write may have changed.
type Topic string

const (
	TopicQueue Topic = "queue"
	TopicCalls Topic = "calls"
)

// DefaultDebounce - bursts of writes inside this window cost one fetch
// per query.
const DefaultDebounce = 50 * time.Millisecond

type QueryKind string

const (
	QueryEntries QueryKind = "entries"
	QueryCalls   QueryKind = "calls"
)

// Query - what a reader wants to watch: the entries in some statuses, or
// the newest Limit call records.
type Query struct {
	Kind     QueryKind
	Statuses []models.Status
	Limit    int
}

func EntriesQuery(statuses ...models.Status) Query {
	return Query{Kind: QueryEntries, Statuses: statuses}
}

func CallsQuery(limit int) Query {
	return Query{Kind: QueryCalls, Limit: limit}
}

func (q Query) validate() error {
	switch q.Kind {
	case QueryEntries:
		if len(q.Statuses) == 0 {
			return apperr.Validation("entries query needs at least one status")
		}
		for _, s := range q.Statuses {
			if !s.Valid() {
				return apperr.Validation("unknown status %q", s)
			}
		}
	case QueryCalls:
		if q.Limit <= 0 {
			return apperr.Validation("calls query needs a positive limit")
		}
	default:
		return apperr.Validation("unknown query kind %q", q.Kind)
	}
	return nil
}

// key identifies equivalent queries so they share one fetch.
func (q Query) key() string {
	if q.Kind == QueryCalls {
		return fmt.Sprintf("calls:%d", q.Limit)
	}
	names := make([]string, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return "entries:" + strings.Join(names, ",")
}

func (q Query) topic() Topic {
	if q.Kind == QueryCalls {
		return TopicCalls
	}
	return TopicQueue
}

// Snapshot - the entire result set of a query at one moment. Entries are
// in store order; readers sort them for display.
type Snapshot struct {
	Version uint64              `json:"version"`
	Entries []models.QueueEntry `json:"entries,omitempty"`
	Calls   []models.CallRecord `json:"calls,omitempty"`
	At      time.Time           `json:"at"`
}

// Source - where snapshots are read from. *store.Store satisfies it.
type Source interface {
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.QueueEntry, error)
	LatestCalls(ctx context.Context, n int) ([]models.CallRecord, error)
}

// Subscription - one reader's handle. Initial holds the snapshot at
// registration; C receives every later snapshot, latest-wins, and is
// closed by Cancel.
type Subscription struct {
	Query   Query
	Initial Snapshot
	C       <-chan Snapshot

	id   uint64
	ch   chan Snapshot
	done chan struct{}
	b    *Broadcaster
	once sync.Once
}

// Cancel unregisters the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.b.remove(s) })
}

type group struct {
	query  Query
	subs   map[uint64]*Subscription
	cached *Snapshot
	gen    uint64 // bumped by every invalidation
}

// Broadcaster fans store changes out to subscribers. Writers call Notify
// after committing; each affected query is re-fetched once and the whole
// result set is pushed to every subscriber of it.
type Broadcaster struct {
	source   Source
	debounce time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	groups  map[string]*group
	nextID  uint64
	version uint64
	closed  bool

	pendingMu sync.Mutex
	pending   map[Topic]bool
	timer     *time.Timer

	flushMu sync.Mutex
}

// NewBroadcaster - debounce 0 flushes synchronously inside Notify.
func NewBroadcaster(source Source, debounce time.Duration) *Broadcaster {
	return &Broadcaster{
		source:   source,
		debounce: debounce,
		timeout:  5 * time.Second,
		groups:   map[string]*group{},
		pending:  map[Topic]bool{},
	}
}

// Subscribe registers a reader. The subscription is registered before the
// initial fetch, so a change racing with it is delivered on C rather than
// lost. ctx ending cancels the subscription.
func (b *Broadcaster) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperr.Transient("broadcaster is shut down", nil)
	}
	key := q.key()
	g, ok := b.groups[key]
	if !ok {
		g = &group{query: q, subs: map[uint64]*Subscription{}}
		b.groups[key] = g
	}
	b.nextID++
	sub := &Subscription{Query: q, id: b.nextID, ch: make(chan Snapshot, 1), done: make(chan struct{}), b: b}
	sub.C = sub.ch
	g.subs[sub.id] = sub
	cached, gen := g.cached, g.gen
	b.mu.Unlock()

	if cached != nil {
		sub.Initial = *cached
	} else {
		snap, err := b.fetch(ctx, q)
		if err != nil {
			sub.Cancel()
			return nil, err
		}
		b.mu.Lock()
		if g.gen == gen && g.cached == nil {
			g.cached = &snap
		}
		b.mu.Unlock()
		sub.Initial = snap
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()

	log.Debug().Str("component", "broadcaster").Str("query", key).Uint64("subscription", sub.id).
		Msg("subscribed")
	return sub, nil
}

// Notify marks every query under topics as changed.
func (b *Broadcaster) Notify(topics ...Topic) {
	if len(topics) == 0 {
		return
	}

	b.mu.Lock()
	for _, g := range b.groups {
		if hasTopic(topics, g.query.topic()) {
			g.cached = nil
			g.gen++
		}
	}
	b.mu.Unlock()

	b.pendingMu.Lock()
	for _, t := range topics {
		b.pending[t] = true
	}
	if b.debounce <= 0 {
		b.pendingMu.Unlock()
		b.flush()
		return
	}
	if b.timer != nil {
		b.timer.Reset(b.debounce)
		b.pendingMu.Unlock()
		return
	}
	b.timer = time.AfterFunc(b.debounce, func() {
		b.pendingMu.Lock()
		b.timer = nil
		b.pendingMu.Unlock()
		b.flush()
	})
	b.pendingMu.Unlock()
}

func hasTopic(topics []Topic, t Topic) bool {
	for _, x := range topics {
		if x == t {
			return true
		}
	}
	return false
}

// flush re-fetches every query under the pending topics and delivers the
// results. Flushes run one at a time so snapshots reach readers in the
// order they were read.
func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingMu.Lock()
	topics := make([]Topic, 0, len(b.pending))
	for t := range b.pending {
		topics = append(topics, t)
	}
	b.pending = map[Topic]bool{}
	b.pendingMu.Unlock()
	if len(topics) == 0 {
		return
	}

	type target struct {
		key string
		q   Query
		gen uint64
	}
	b.mu.Lock()
	var targets []target
	for key, g := range b.groups {
		if hasTopic(topics, g.query.topic()) && len(g.subs) > 0 {
			targets = append(targets, target{key: key, q: g.query, gen: g.gen})
		}
	}
	b.mu.Unlock()

	for _, t := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		snap, err := b.fetch(ctx, t.q)
		cancel()
		if err != nil {
			log.Error().Str("component", "broadcaster").Str("query", t.key).Err(err).
				Msg("snapshot fetch failed")
			continue
		}
		b.deliver(t.key, t.gen, snap)
	}
}

func (b *Broadcaster) deliver(key string, gen uint64, snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[key]
	if !ok {
		return
	}
	if g.gen == gen {
		g.cached = &snap
	}
	for _, sub := range g.subs {
		offer(sub.ch, snap)
	}
}

// offer replaces whatever the reader has not consumed yet. It never
// blocks, so one slow reader cannot hold up the others.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (b *Broadcaster) fetch(ctx context.Context, q Query) (Snapshot, error) {
	var snap Snapshot
	switch q.Kind {
	case QueryEntries:
		entries, err := b.source.ListByStatus(ctx, q.Statuses...)
		if err != nil {
			return snap, err
		}
		snap.Entries = entries
	case QueryCalls:
		calls, err := b.source.LatestCalls(ctx, q.Limit)
		if err != nil {
			return snap, err
		}
		snap.Calls = calls
	}

	b.mu.Lock()
	b.version++
	snap.Version = b.version
	b.mu.Unlock()
	snap.At = time.Now().UTC()
	return snap, nil
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := s.Query.key()
	g, ok := b.groups[key]
	if !ok {
		return
	}
	if _, ok := g.subs[s.id]; !ok {
		return
	}
	delete(g.subs, s.id)
	close(s.ch)
	close(s.done)
	if len(g.subs) == 0 {
		delete(b.groups, key)
	}
}

// Subscribers - number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, g := range b.groups {
		n += len(g.subs)
	}
	return n
}

// Close stops pending flushes and cancels every subscription.
func (b *Broadcaster) Close() {
	b.pendingMu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pendingMu.Unlock()

	b.mu.Lock()
	b.closed = true
	var subs []*Subscription
	for _, g := range b.groups {
		for _, s := range g.subs {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}
