package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/park285/cheese-matchd/pkg/gamedto"
)

// SetSSEHeaders disables caching and proxy buffering for an event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteSSE writes one `data: <json>` frame.
func WriteSSE(w io.Writer, ev gamedto.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}

// ServeSSE pumps c to w until the stream ends or a write fails, then closes c.
func ServeSSE(w http.ResponseWriter, c *Conn) {
	defer c.Close()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for ev := range c.Events() {
		if err := WriteSSE(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}
