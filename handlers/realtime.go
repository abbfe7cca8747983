package handlers

import (
	"context"
	"net/http"
	"time"

	bookingRepo "wellnest/database/repository/booking"
	"wellnest/middleware"
	"wellnest/services/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// consoleMessage is what a console may send over the stream.
type consoleMessage struct {
	// Type is "filter", "refresh" or "resubscribe".
	Type   string `json:"type"`
	Filter string `json:"filter,omitempty"`
}

// RealtimeHandler streams a console's booking view. Each connection runs
// its own sync client.
type RealtimeHandler struct {
	Feed    bookingRepo.ChangeFeed
	Source  realtime.Source
	Timeout time.Duration
}

func NewRealtimeHandler(feed bookingRepo.ChangeFeed, source realtime.Source, timeout time.Duration) *RealtimeHandler {
	return &RealtimeHandler{Feed: feed, Source: source, Timeout: timeout}
}

// StreamBookingsHandler handles GET /api/bookings/stream and
// GET /api/owner/bookings/stream.
func (h *RealtimeHandler) StreamBookingsHandler(c *gin.Context) {
	logger := getLogger(c)
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := realtime.NewSyncClient(h.Feed, h.Source, realtime.Scope{Actor: actor, Filter: c.Query("filter")}, h.Timeout, logger)
	defer client.Close()
	if err := client.Start(ctx); err != nil {
		logger.Warn("Booking stream subscribe failed", zap.String("actorID", actor.ID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription unavailable"),
			time.Now().Add(writeWait))
		return
	}

	go h.readPump(conn, client, cancel, logger)
	h.writePump(ctx, conn, client)
}

func (h *RealtimeHandler) readPump(conn *websocket.Conn, client *realtime.SyncClient, done context.CancelFunc, logger *zap.Logger) {
	defer done()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg consoleMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "filter":
			client.SetFilter(msg.Filter)
		case "refresh":
			client.Refresh()
		case "resubscribe":
			if err := client.Resubscribe(); err != nil {
				logger.Warn("Booking stream resubscribe failed", zap.Error(err))
			}
		default:
			logger.Debug("Unknown console message", zap.String("type", msg.Type))
		}
	}
}

func (h *RealtimeHandler) writePump(ctx context.Context, conn *websocket.Conn, client *realtime.SyncClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snap := <-client.Updates():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
