package chat

import (
	"fmt"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
)

// PresenceTracker maintains the live roster by reducing presence snapshots
// into a local set. Roster order carries no meaning; display code sorts by
// name. "Is this me" is the consumer comparing an entry's UserID to its own
// session identity; there is no protocol-level self flag.
type PresenceTracker struct {
	rec    *reconciler
	roster []models.PresenceEntry
}

// ObservePresence opens exactly one subscription to the presence collection
// and starts the reconciliation loop.
func ObservePresence() (*PresenceTracker, error) {
	sub, err := store.SubscribePresence()
	if err != nil {
		return nil, fmt.Errorf("presence subscribe: %w", err)
	}
	t := &PresenceTracker{rec: newReconciler(sub)}
	go t.rec.run(func(snap store.Snapshot) {
		// Wholesale replace. A redelivered stale snapshot causes a brief
		// flicker that the next snapshot supersedes; the store delivers
		// generations in order per subscription.
		t.roster = snap.Roster
	})
	logger.Debug("presence_tracker_started")
	return t, nil
}

// Roster returns a copy of the current presence set.
func (t *PresenceTracker) Roster() []models.PresenceEntry {
	t.rec.mu.RLock()
	defer t.rec.mu.RUnlock()
	out := make([]models.PresenceEntry, len(t.roster))
	copy(out, t.roster)
	return out
}

// Updates signals that the roster changed since the last read.
func (t *PresenceTracker) Updates() <-chan struct{} {
	return t.rec.updates
}

// Stop cancels the subscription. Idempotent; snapshots arriving after Stop
// are discarded.
func (t *PresenceTracker) Stop() {
	t.rec.stop()
}
