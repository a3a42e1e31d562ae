package chat

import (
	"fmt"
	"strings"
	"sync"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
	"echoclub/pkg/validation"
)

// MessageStream maintains the local ordered message log by reducing
// snapshots of the message collection, and exposes the send and clear
// operations. The subscription is a single unbounded query ordered
// ascending by server timestamp; the entire history is held locally.
type MessageStream struct {
	rec      *reconciler
	identity models.Identity
	msgs     []models.Message
}

// ObserveMessages opens exactly one subscription to the message collection
// and starts the reconciliation loop. identity is stamped onto outgoing
// messages.
func ObserveMessages(identity models.Identity) (*MessageStream, error) {
	sub, err := store.SubscribeMessages()
	if err != nil {
		return nil, fmt.Errorf("message subscribe: %w", err)
	}
	s := &MessageStream{rec: newReconciler(sub), identity: identity}
	go s.rec.run(func(snap store.Snapshot) {
		// The store returns documents in key order, which already
		// satisfies the ascending-timestamp contract with a stable
		// tie-break, so the snapshot is adopted as delivered.
		s.msgs = snap.Messages
	})
	logger.Debug("message_stream_started", "user", identity.UserID)
	return s, nil
}

// Messages returns a copy of the current ordered log.
func (s *MessageStream) Messages() []models.Message {
	s.rec.mu.RLock()
	defer s.rec.mu.RUnlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Updates signals that the log changed since the last read.
func (s *MessageStream) Updates() <-chan struct{} {
	return s.rec.updates
}

// Send writes a new message authored by the stream's identity. Text that is
// empty after trimming is a UI guard, not an error: the call is a silent
// no-op and nothing reaches the store.
func (s *MessageStream) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.identity.IsZero() {
		return ErrUnauthenticated
	}
	if s.rec.isClosed() {
		return ErrSessionClosed
	}
	if err := validation.ValidateText(text); err != nil {
		return err
	}
	msg := models.Message{
		Text:       text,
		AuthorID:   s.identity.UserID,
		AuthorName: s.identity.DisplayName,
	}
	if _, err := store.AppendMessage(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// ClearAll reads the current full snapshot of the message collection and
// deletes every document found, each as an independent concurrent delete.
// A message written by a concurrent sender during the clear may not be in
// the pre-read snapshot and survives; that race is accepted, not hidden.
// Returns a PartialDeleteError if any individual delete rejects;
// already-deleted documents are not retried.
func (s *MessageStream) ClearAll() error {
	msgs, err := store.ListMessages()
	if err != nil {
		return fmt.Errorf("clear all: read snapshot: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for _, m := range msgs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := store.DeleteMessage(id); err != nil {
				logger.Warn("clear_all_delete_failed", "id", id, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(m.ID)
	}
	wg.Wait()
	logger.Info("messages_cleared", "attempted", len(msgs), "failed", failed)
	if failed > 0 {
		return &PartialDeleteError{Attempted: len(msgs), Failed: failed}
	}
	return nil
}

// Stop cancels the subscription. Idempotent; snapshots arriving after Stop
// are discarded.
func (s *MessageStream) Stop() {
	s.rec.stop()
}
