package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/notifier"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// laggedCloseCode signals the subscriber fell behind and must reconcile
// via REST before reconnecting with its last-seen seq.
const laggedCloseCode = 4000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandlers serves the notifier event stream over websocket.
type WSHandlers struct {
	hub *notifier.Hub
	log zerolog.Logger
}

// NewWSHandlers creates websocket handlers.
func NewWSHandlers(hub *notifier.Hub, log zerolog.Logger) *WSHandlers {
	return &WSHandlers{hub: hub, log: log.With().Str("component", "ws").Logger()}
}

// Stream handles GET /ws with optional ?since=<seq> backfill.
func (h *WSHandlers) Stream(c *gin.Context) {
	var sinceSeq uint64
	if since := c.Query("since"); since != "" {
		parsed, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, codeValidation, "since must be a sequence number")
			return
		}
		sinceSeq = parsed
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(sinceSeq)
	defer h.hub.Unsubscribe(sub)

	// Reader pump: consume control frames, detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()
	defer ws.Close() //nolint:errcheck // close error ignored in defer

	for {
		select {
		case <-done:
			return

		case <-sub.Lagged:
			h.log.Warn().Msg("subscriber lagged, disconnecting")
			deadline := time.Now().Add(wsWriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(laggedCloseCode, "lagged"), deadline)
			return

		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(event); err != nil {
				return
			}

		case <-pinger.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
