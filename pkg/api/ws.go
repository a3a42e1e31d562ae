package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"echoclub/pkg/chat"
	"echoclub/pkg/logger"
	"echoclub/pkg/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsEvent is one push frame: the full reconciled state of one collection,
// delivered wholesale exactly as the session's reconciliation loops applied
// it. Clients replace, never merge.
type wsEvent struct {
	Type     string                 `json:"type"` // "messages" or "presence"
	Messages []models.Message       `json:"messages,omitempty"`
	Roster   []models.PresenceEntry `json:"roster,omitempty"`
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, origin := range s.cfg.Security.CORS.AllowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// handleWebSocket streams snapshot updates for an open session. When the
// socket drops, the session is ended, which covers the
// abrupt-disconnect path (tab close, crash) the explicit leave endpoint
// cannot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, tok, ok := s.session(r)
	if !ok {
		http.Error(w, "no open session", http.StatusUnauthorized)
		return
	}
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()
	logger.Info("websocket_connected", "user", sess.Identity.UserID)

	// Read pump: the client only sends keepalives; a read error means the
	// socket is gone.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial state, then a frame per reconciled update.
	s.push(conn, messagesEvent(sess))
	s.push(conn, presenceEvent(sess))

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-sess.Messages.Updates():
			if !s.push(conn, messagesEvent(sess)) {
				s.dropConnection(tok, sess)
				return
			}
		case <-sess.Presence.Updates():
			if !s.push(conn, presenceEvent(sess)) {
				s.dropConnection(tok, sess)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.dropConnection(tok, sess)
				return
			}
		case <-readClosed:
			s.dropConnection(tok, sess)
			return
		case <-sess.Done():
			// Session ended elsewhere (explicit leave); close the socket.
			logger.Info("websocket_session_ended", "user", sess.Identity.UserID)
			return
		}
	}
}

func messagesEvent(sess *chat.Session) wsEvent {
	return wsEvent{Type: "messages", Messages: sess.Messages.Messages()}
}

// presenceEvent sorts the roster by display name for stable rendering; the
// underlying set order carries no meaning.
func presenceEvent(sess *chat.Session) wsEvent {
	roster := sess.Presence.Roster()
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].DisplayName < roster[j].DisplayName
	})
	return wsEvent{Type: "presence", Roster: roster}
}

func (s *Server) push(conn *websocket.Conn, ev wsEvent) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		logger.Debug("websocket_write_failed", "error", err)
		return false
	}
	return true
}

func (s *Server) dropConnection(tok string, sess *chat.Session) {
	logger.Info("websocket_disconnected", "user", sess.Identity.UserID)
	s.endSession(tok, sess)
}
