package store

import (
	"sync"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
)

// Collection names a subscribable result set.
type Collection string

const (
	CollectionMessages Collection = "messages"
	CollectionPresence Collection = "presence"
)

// Snapshot is a complete result set for a subscribed collection, delivered
// whenever any document in its scope changes. Gen increases by one per
// accepted mutation; subscribers always observe generations in order,
// though a slow subscriber may skip intermediate ones.
type Snapshot struct {
	Gen      uint64
	Messages []models.Message       // set for CollectionMessages
	Roster   []models.PresenceEntry // set for CollectionPresence
}

// Subscription is one live subscription over a collection. Snapshots arrive
// on C starting with the current state at subscribe time. Cancel is
// idempotent; no snapshot is delivered after Cancel returns.
type Subscription struct {
	C <-chan Snapshot

	col    Collection
	ch     chan Snapshot
	once   sync.Once
	parent *snapshotHub
}

// Cancel tears down the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.parent.remove(s)
		close(s.ch)
	})
}

// snapshotHub fans full-result snapshots out to subscribers. All snapshot
// reads and deliveries for a collection happen under that collection's
// lock, which is what guarantees generation order per subscriber.
type snapshotHub struct {
	mu   sync.Mutex
	gens map[Collection]uint64
	subs map[Collection][]*Subscription
}

var hub = &snapshotHub{
	gens: make(map[Collection]uint64),
	subs: make(map[Collection][]*Subscription),
}

// Subscribe opens a subscription over the given collection and immediately
// delivers the current snapshot.
func Subscribe(col Collection) (*Subscription, error) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	snap, err := hub.readLocked(col)
	if err != nil {
		return nil, err
	}
	s := &Subscription{col: col, ch: make(chan Snapshot, 1), parent: hub}
	s.C = s.ch
	s.ch <- snap
	hub.subs[col] = append(hub.subs[col], s)
	subscribersGauge.WithLabelValues(string(col)).Inc()
	logger.Debug("subscription_opened", "collection", string(col))
	return s, nil
}

// SubscribeMessages opens a subscription over the ordered message
// collection.
func SubscribeMessages() (*Subscription, error) {
	return Subscribe(CollectionMessages)
}

// SubscribePresence opens a subscription over the presence collection.
func SubscribePresence() (*Subscription, error) {
	return Subscribe(CollectionPresence)
}

// notify bumps the collection generation and delivers a fresh full-result
// snapshot to every subscriber. Called by the write path after each
// accepted mutation.
func (h *snapshotHub) notify(col Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gens[col]++
	if len(h.subs[col]) == 0 {
		return
	}
	snap, err := h.readLocked(col)
	if err != nil {
		logger.Error("snapshot_read_failed", "collection", string(col), "error", err)
		return
	}
	for _, s := range h.subs[col] {
		s.deliver(snap)
		snapshotsTotal.WithLabelValues(string(col)).Inc()
	}
}

// readLocked builds the current full-result snapshot for a collection.
// Caller holds h.mu.
func (h *snapshotHub) readLocked(col Collection) (Snapshot, error) {
	snap := Snapshot{Gen: h.gens[col]}
	switch col {
	case CollectionMessages:
		msgs, err := ListMessages()
		if err != nil {
			return Snapshot{}, err
		}
		snap.Messages = msgs
	case CollectionPresence:
		roster, err := ListPresence()
		if err != nil {
			return Snapshot{}, err
		}
		snap.Roster = roster
	}
	return snap, nil
}

func (h *snapshotHub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[s.col]
	for i, cur := range subs {
		if cur == s {
			h.subs[s.col] = append(subs[:i], subs[i+1:]...)
			subscribersGauge.WithLabelValues(string(s.col)).Dec()
			logger.Debug("subscription_cancelled", "collection", string(s.col))
			return
		}
	}
}

// deliver coalesces to the newest snapshot: if the subscriber has not yet
// consumed the previous one, it is replaced rather than queued, so a slow
// consumer never observes generations out of order.
func (s *Subscription) deliver(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
