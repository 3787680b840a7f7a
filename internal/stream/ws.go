package stream

import (
	"context"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ServeWebSocket pumps c to ws as JSON text frames until either side ends,
// then closes both.
func ServeWebSocket(ctx context.Context, ws *websocket.Conn, c *Conn) {
	defer c.Close()
	status, reason := websocket.StatusNormalClosure, "stream closed"
	for ev := range c.Events() {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := wsjson.Write(wctx, ws, ev)
		cancel()
		if err != nil {
			status, reason = websocket.StatusGoingAway, "write failed"
			break
		}
	}
	_ = ws.Close(status, reason)
}
