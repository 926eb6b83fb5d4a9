package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/transfer"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// nextSnapshot blocks until the subscription yields a snapshot. ok is false
// once the watch is over: the subscription was dropped or replaced, or done fired.
func nextSnapshot(sub *transfer.Subscription, done <-chan struct{}) (transfer.Snapshot, bool) {
	select {
	case snap := <-sub.C():
		return snap, true
	case <-sub.Done():
		// a terminal snapshot is published right before the watcher is dropped
		return sub.Pending()
	case <-done:
		return transfer.Snapshot{}, false
	}
}

// streamSSE writes the initial snapshot and every following one as server
// sent events until the job is terminal or the client goes away
func streamSSE(c *gin.Context, sub *transfer.Subscription, initial transfer.Snapshot) {
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// unnamed events reach EventSource.onmessage
	send := func(snap transfer.Snapshot) {
		c.SSEvent("", snap)
		c.Writer.Flush()
	}

	send(initial)
	if initial.Terminal() {
		return
	}

	for {
		snap, ok := nextSnapshot(sub, c.Request.Context().Done())
		if !ok {
			return
		}
		send(snap)
		if snap.Terminal() {
			return
		}
	}
}

// streamWS is streamSSE over a WebSocket, one JSON message per snapshot
func streamWS(c *gin.Context, logger *slog.Logger, sub *transfer.Subscription, initial transfer.Snapshot) {
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	// the read side only exists to notice the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap, ok := initial, true
	for ok {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			logger.Debug("WebSocket write failed", slog.Any("error", err))
			return
		}
		if snap.Terminal() {
			break
		}
		snap, ok = nextSnapshot(sub, gone)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}
