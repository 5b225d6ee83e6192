package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// handleFeed upgrades to a websocket and pushes a snapshot message after every
// store change, starting with the current state. One goroutine writes; a
// second only drains reads to notice the client going away.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := s.engine.Store().Subscribe(1)
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("feed client connected", "remote", r.RemoteAddr)
	defer s.logger.Info("feed client disconnected", "remote", r.RemoteAddr)

	if err := s.send(conn, s.snapshotMessage(s.engine.Store().Snapshot())); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-gone:
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := s.send(conn, s.snapshotMessage(snap)); err != nil {
				return
			}
		case <-ping.C:
			if err := s.send(conn, models.FeedMessage{Type: models.FeedPing}); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg models.FeedMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("feed write failed", "error", err)
		return err
	}
	return nil
}
