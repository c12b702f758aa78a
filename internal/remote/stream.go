package remote

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torvik/sketchbridge/internal/device"
)

// StreamDialer implements device.Dialer against the device streaming
// service: a REST reservation pins the endpoint to this session, then a
// WebSocket attaches to the reserved channel. Close releases the
// reservation even when the socket already failed.
type StreamDialer struct {
	c *Client
}

// NewStreamDialer builds a dialer for the streaming service at base.
func NewStreamDialer(base string) *StreamDialer {
	return &StreamDialer{c: NewClient(base, nil)}
}

// reserveRequest is the reservation body.
type reserveRequest struct {
	Endpoint string `json:"endpoint"`
	Rate     int    `json:"rate"`
}

// reserveEnvelope is the reservation response.
type reserveEnvelope struct {
	Success bool   `json:"success"`
	Handle  string `json:"handle"`
	Error   string `json:"error"`
}

// Dial reserves endpoint at rate and attaches the channel WebSocket.
func (d *StreamDialer) Dial(ctx context.Context, endpoint string, rate int) (device.Stream, error) {
	var env reserveEnvelope
	body := reserveRequest{Endpoint: endpoint, Rate: rate}
	if err := d.c.doJSON(ctx, "stream.reserve", http.MethodPost, "/monitor/reserve", body, &env); err != nil {
		return nil, err
	}
	if !env.Success || env.Handle == "" {
		return nil, &RemoteError{Op: "stream.reserve", Detail: firstNonEmpty(env.Error, "reservation refused")}
	}

	wsURL, err := channelURL(d.c.base, env.Handle)
	if err != nil {
		d.release(env.Handle)
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		// The reservation exists but the channel never opened; release it
		// so the endpoint is not leaked.
		d.release(env.Handle)
		return nil, fmt.Errorf("remote: stream.attach: %w", err)
	}

	ws := &wsStream{
		dialer: d,
		handle: env.Handle,
		conn:   conn,
		recv:   make(chan string, 64),
		done:   make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

// channelURL converts the service base URL into the ws:// channel address
// for a reservation handle.
func channelURL(base, handle string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("remote: stream: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = u.Path + "/monitor/channel/" + url.PathEscape(handle)
	return u.String(), nil
}

// release returns the reservation to the service. Best effort.
func (d *StreamDialer) release(handle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	body := map[string]string{"handle": handle}
	if err := d.c.doJSON(ctx, "stream.release", http.MethodPost, "/monitor/release", body, nil); err != nil {
		// The service reaps stale reservations on its own.
		log.Printf("remote: stream.release %s: %v", handle, err)
	}
}

// wsStream is the live WebSocket channel for one reservation.
type wsStream struct {
	dialer *StreamDialer
	handle string
	conn   *websocket.Conn
	recv   chan string
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Send writes one outbound text frame. Serialized because gorilla permits
// a single concurrent writer.
func (s *wsStream) Send(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("stream write: %w", err)
	}
	return nil
}

// Recv returns the inbound chunk channel.
func (s *wsStream) Recv() <-chan string {
	return s.recv
}

// Done returns the teardown channel.
func (s *wsStream) Done() <-chan struct{} {
	return s.done
}

// Close closes the socket and releases the reservation. Safe to call more
// than once and after a transport failure.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.dialer.release(s.handle)
	})
	return nil
}

// readLoop delivers inbound text frames in arrival order until the socket
// fails or closes.
func (s *wsStream) readLoop() {
	defer close(s.done)
	defer close(s.recv)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		s.recv <- string(data)
	}
}
