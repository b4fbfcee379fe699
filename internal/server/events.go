package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 2 * pingInterval
)

// handleEvents handles GET /api/sessions/{id}/events. It upgrades to a
// websocket and streams every state change as {"kind", "address"}.
// Events are dropped for clients that fall behind; they re-read the graph
// on the next event anyway.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		// Subscribe before the handshake completes so no change made after
		// the client sees the upgrade is missed.
		events := make(chan graph.Event, eventBuffer)
		cancel := sess.state.Subscribe(func(ev graph.Event) {
			select {
			case events <- ev:
			default:
				s.logger.Debug("event dropped", "session", sess.id, "kind", ev.Kind)
			}
		})
		defer cancel()
		sess.watchers.Add(1)
		defer func() {
			sess.touch(time.Now())
			sess.watchers.Add(-1)
		}()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "session", sess.id, "err", err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go s.readLoop(conn, done)
		s.writeLoop(conn, events, done)
	})(w, r)
}

// readLoop discards client messages and closes done when the peer goes away.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, events <-chan graph.Event, done <-chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
