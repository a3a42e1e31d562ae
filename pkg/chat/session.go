package chat

import (
	"errors"
	"fmt"
	"sync"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
)

// Revoker invalidates an authentication credential at sign-out.
type Revoker interface {
	Revoke(token string)
}

// Manager owns session lifecycles: presence registration, join/leave
// announcements and subscription teardown.
type Manager struct {
	revoker Revoker
}

func NewManager(revoker Revoker) *Manager {
	return &Manager{revoker: revoker}
}

// Session ties one authenticated identity to its roster membership and its
// two live subscriptions. Exactly one Session is live per connected client.
type Session struct {
	Identity models.Identity
	Token    string

	Messages *MessageStream
	Presence *PresenceTracker

	mgr     *Manager
	endOnce sync.Once
	done    chan struct{}
}

// Done is closed when the session has ended, so long-lived observers (the
// websocket loop) can tear down without polling.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start opens a session for an authenticated identity. In order it (1)
// upserts the presence entry with a fresh server LastActive, (2) appends a
// system message announcing the join. The two writes are independent and
// not transactional: a partial failure is surfaced through the returned
// error but not rolled back, and the session is still live when both
// subscriptions opened. Exactly two subscriptions are opened here and they
// are closed together in End.
func (m *Manager) Start(identity models.Identity, token string) (*Session, error) {
	if identity.IsZero() {
		return nil, ErrUnauthenticated
	}

	var writeErrs []error
	if _, err := store.PutPresence(models.PresenceEntry{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	}); err != nil {
		logger.Error("presence_register_failed", "user", identity.UserID, "error", err)
		writeErrs = append(writeErrs, fmt.Errorf("presence write: %w", err))
	}
	if _, err := store.AppendMessage(models.Message{
		Text:   identity.DisplayName + " joined the chat",
		System: true,
	}); err != nil {
		logger.Error("join_announce_failed", "user", identity.UserID, "error", err)
		writeErrs = append(writeErrs, fmt.Errorf("join announcement: %w", err))
	}

	msgs, err := ObserveMessages(identity)
	if err != nil {
		return nil, err
	}
	pres, err := ObservePresence()
	if err != nil {
		msgs.Stop()
		return nil, err
	}

	s := &Session{
		Identity: identity,
		Token:    token,
		Messages: msgs,
		Presence: pres,
		mgr:      m,
		done:     make(chan struct{}),
	}
	logger.Info("session_started", "user", identity.UserID, "name", identity.DisplayName)
	return s, errors.Join(writeErrs...)
}

// End tears the session down: it cancels both subscriptions first, then
// deletes the presence entry, appends the departure announcement and
// revokes the credential. Every step is attempted regardless of earlier
// failures; errors are logged and joined into the return value rather than
// aborting the sequence. Idempotent.
func (m *Manager) End(s *Session) error {
	if s == nil {
		return nil
	}
	var endErr error
	s.endOnce.Do(func() {
		close(s.done)
		s.Messages.Stop()
		s.Presence.Stop()

		var errs []error
		if err := store.DeletePresence(s.Identity.UserID); err != nil {
			logger.Error("presence_deregister_failed", "user", s.Identity.UserID, "error", err)
			errs = append(errs, fmt.Errorf("presence delete: %w", err))
		}
		if _, err := store.AppendMessage(models.Message{
			Text:   s.Identity.DisplayName + " left the chat",
			System: true,
		}); err != nil {
			logger.Error("leave_announce_failed", "user", s.Identity.UserID, "error", err)
			errs = append(errs, fmt.Errorf("leave announcement: %w", err))
		}
		if m.revoker != nil && s.Token != "" {
			m.revoker.Revoke(s.Token)
		}
		logger.Info("session_ended", "user", s.Identity.UserID)
		endErr = errors.Join(errs...)
	})
	return endErr
}

// End is a convenience wrapper so callers holding only the session can end
// it.
func (s *Session) End() error {
	return s.mgr.End(s)
}
