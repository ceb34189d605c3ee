// Live change streams.
//
//   - GET /complaints/stream   websocket, one JSON event per text frame
//   - GET /complaints/events   Server-Sent Events, event name "complaint"
//
// Each connection owns one notify subscription, closed when the client goes
// away. Slow clients miss events instead of stalling the publisher.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-complaint-triage/internal/http/middleware"
	"github.com/tbourn/go-complaint-triage/internal/notify"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// maxClientMessage caps inbound frames; clients only send control frames.
	maxClientMessage = 512
)

func (h *Handlers) subscribe(c *gin.Context) (*notify.Subscription, bool) {
	if h.events == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "change notifications are disabled")
		return nil, false
	}
	return h.events.Subscribe(h.StreamBuffer), true
}

// clearDeadlines lifts the server's read and write timeouts for a long-lived
// response. An expired read deadline also cancels the request context.
func clearDeadlines(c *gin.Context) {
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("clear write deadline")
	}
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("clear read deadline")
	}
}

func (h *Handlers) keepAlive() time.Duration {
	if h.KeepAlive <= 0 {
		return 30 * time.Second
	}
	return h.KeepAlive
}

// StreamComplaints godoc
// @ID          streamComplaints
// @Summary     Live complaint changes (websocket)
// @Description Upgrades to a websocket and pushes one JSON change event per stored, updated, or deleted complaint.
// @Tags        Complaints
// @Success     101  {object} notify.Event
// @Failure     503  {object} handlers.ErrorResponse "Notifications disabled"
// @Router      /complaints/stream [get]
func (h *Handlers) StreamComplaints(c *gin.Context) {
	sub, okSub := h.subscribe(c)
	if !okSub {
		return
	}
	defer sub.Close()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
}

// readPump drains client frames so pongs and close frames are processed.
// It closes done when the peer disconnects or stops answering pings.
func (h *Handlers) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	pongWait := h.keepAlive() * 2
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards events and pings until the subscription ends or the
// reader reports the peer gone.
func (h *Handlers) writePump(conn *websocket.Conn, sub *notify.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(h.keepAlive())
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// ComplaintEvents godoc
// @ID          complaintEvents
// @Summary     Live complaint changes (SSE)
// @Description Streams change events as Server-Sent Events named "complaint"; heartbeats are sent as "ping".
// @Tags        Complaints
// @Produce     text/event-stream
// @Success     200  {object} notify.Event
// @Failure     503  {object} handlers.ErrorResponse "Notifications disabled"
// @Router      /complaints/events [get]
func (h *Handlers) ComplaintEvents(c *gin.Context) {
	sub, okSub := h.subscribe(c)
	if !okSub {
		return
	}
	defer sub.Close()

	clearDeadlines(c)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive())
	defer ticker.Stop()
	ctx := c.Request.Context()

	// The first event flushes headers so clients see the stream open.
	c.SSEvent("ping", "ready")
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return false
			}
			c.SSEvent("complaint", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
