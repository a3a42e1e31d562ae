package chat

import (
	"sync"

	"echoclub/pkg/store"
)

// reconciler is the subscribe-once, replace-on-snapshot loop shared by the
// presence tracker and the message stream. Local state is wholesale-replaced
// on every delivered snapshot, never merged incrementally; snapshots that
// arrive after Stop are discarded, not applied. Replacement is O(collection
// size) per update, which is fine at chat-room scale; an id-keyed
// incremental apply would be the extension point if histories grew large.
type reconciler struct {
	mu      sync.RWMutex
	closed  bool
	sub     *store.Subscription
	updates chan struct{}
	done    chan struct{}
}

func newReconciler(sub *store.Subscription) *reconciler {
	return &reconciler{
		sub:     sub,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// run consumes snapshots until the subscription closes. apply is invoked
// with r.mu held.
func (r *reconciler) run(apply func(store.Snapshot)) {
	defer close(r.done)
	for snap := range r.sub.C {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		apply(snap)
		r.mu.Unlock()
		r.signal()
	}
}

// signal coalesces change notifications for observers; a pending tick means
// "state changed since you last looked".
func (r *reconciler) signal() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// stop cancels the subscription and waits for the loop to exit. Idempotent.
func (r *reconciler) stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.sub.Cancel()
	<-r.done
}

func (r *reconciler) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
