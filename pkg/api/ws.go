package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/traceon/traceond/pkg/device"
	"github.com/traceon/traceond/pkg/notify"
	"github.com/traceon/traceond/pkg/projection"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from their own origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one typed frame on the dashboard stream
type streamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleStream upgrades the connection and feeds it the viewer's live
// views: role-scoped parcels, the classified device fleet, and the
// notification feed. Everything is torn down when the peer goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeActionError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 32)}
	s.hub.register <- c

	done := make(chan struct{})
	go c.writePump()
	go c.readPump(done)

	proj, err := projection.New(s.store, projection.Viewer{
		Role: actor.Role, ID: actor.ID, Email: actor.Email,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", actor.ID).Msg("Failed to open projection stream")
		conn.Close()
		return
	}

	monitor, err := device.NewMonitor(s.store, actor.Role, device.Options{
		OfflineAfter: s.opts.OfflineAfter,
		Debug:        s.opts.Debug,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", actor.ID).Msg("Failed to open device stream")
		proj.Close()
		conn.Close()
		return
	}

	feedSub, err := notify.Subscribe(s.store, feedRecipient(actor))
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", actor.ID).Msg("Failed to open notification stream")
		proj.Close()
		monitor.Close()
		conn.Close()
		return
	}

	limit := s.opts.NotificationLimit
	logger := s.logger.With().Str("user_id", actor.ID).Str("role", string(actor.Role)).Logger()
	logger.Info().Msg("Dashboard stream opened")

	go func() {
		defer func() {
			proj.Close()
			monitor.Close()
			feedSub.Cancel()
			logger.Info().Msg("Dashboard stream closed")
		}()

		for {
			select {
			case snap, ok := <-proj.Snapshots():
				if !ok {
					return
				}
				c.trySend(encodeFrame("parcels", snap))
			case snap, ok := <-monitor.Snapshots():
				if !ok {
					return
				}
				c.trySend(encodeFrame("devices", snap))
			case snap, ok := <-feedSub.C():
				logger.Info().Bool("ok", ok).Msg("DEBUG feed snapshot")
				if !ok {
					return
				}
				feed, err := notify.Window(snap.Value, limit)
				if err != nil {
					logger.Error().Err(err).Msg("Skipping undecodable feed snapshot")
					continue
				}
				frame := encodeFrame("notifications", feed)
				logger.Info().Int("len", len(frame)).Str("frame", string(frame)).Msg("DEBUG sending notifications frame")
				c.trySend(frame)
			case <-done:
				return
			}
		}
	}()
}

func encodeFrame(frameType string, payload any) []byte {
	data, _ := json.Marshal(streamMessage{Type: frameType, Payload: payload})
	return data
}
