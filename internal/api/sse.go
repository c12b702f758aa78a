package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// telemetryEvent is the SSE payload for plot updates.
type telemetryEvent struct {
	Samples any `json:"samples"`
}

// handleSSE streams the orchestrator state to the editor: a combined
// snapshot whenever it changes, telemetry on every tick while connected,
// and a heartbeat to keep intermediaries from dropping the stream.
func (s *server) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(time.Second)
	heartbeat := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer heartbeat.Stop()

	var lastState string
	var lastTranscript int
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			view := s.stateView()
			encoded, err := json.Marshal(view)
			if err != nil {
				continue
			}
			if string(encoded) != lastState {
				lastState = string(encoded)
				writeSSE(c.Writer, "state", view)
				c.Writer.Flush()
			}

			if n := view.Device.Entries; n != lastTranscript {
				lastTranscript = n
				writeSSE(c.Writer, "transcript", gin.H{"entries": s.opts.Device.Transcript()})
				if s.opts.Telemetry != nil {
					writeSSE(c.Writer, "telemetry", telemetryEvent{Samples: s.opts.Telemetry.Samples()})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
