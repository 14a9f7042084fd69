package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stakegate/internal/events"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// streamEvents upgrades to a websocket and writes every bus event as JSON.
// An optional ?type= filter may be repeated. Client messages are ignored.
func (s *Server) streamEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, errorBody{Error: "event stream disabled"})
		return
	}
	filter := make(map[events.Type]struct{})
	for _, t := range c.QueryArray("type") {
		filter[events.Type(t)] = struct{}{}
	}

	// Subscribed before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	feed, cancel := s.events.Subscribe(256)
	defer cancel()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Reader: keeps pongs flowing and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-feed:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			if len(filter) > 0 {
				if _, want := filter[e.Type]; !want {
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
