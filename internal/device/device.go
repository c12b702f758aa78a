// Package device owns the lifecycle of the live serial connection to a
// board: at most one connection at a time, an append-only transcript of
// inbound and outbound traffic, and fan-out of inbound chunks to the
// telemetry buffer.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/torvik/sketchbridge/internal/telemetry"
)

// Connection states.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// Validation errors. All are raised locally, before any collaborator call.
var (
	ErrAlreadyConnected = errors.New("device: already connected; disconnect first")
	ErrNotConnected     = errors.New("device: not connected")
	ErrNoEndpoint       = errors.New("device: no endpoint selected")
	ErrBadRate          = errors.New("device: data rate not in allowed set")
)

// Stream is a live duplex channel to a reserved endpoint.
type Stream interface {
	// Send writes text to the channel.
	Send(text string) error
	// Recv returns the channel delivering inbound chunks in arrival order.
	// It is closed when the stream ends.
	Recv() <-chan string
	// Done returns a channel that closes when the stream has torn down.
	Done() <-chan struct{}
	// Close releases the endpoint reservation and closes the channel.
	Close() error
}

// Dialer reserves an endpoint at a data rate and opens its stream.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, rate int) (Stream, error)
}

// Direction tags a transcript entry.
type Direction string

const (
	DirIn  Direction = "rx"
	DirOut Direction = "tx"
	DirSys Direction = "sys"
)

// Entry is one transcript line: inbound chunk, outbound echo, or a system
// note such as a teardown reason.
type Entry struct {
	Time time.Time `json:"time"`
	Dir  Direction `json:"dir"`
	Text string    `json:"text"`
}

// Snapshot is the read-only view of the connection exposed to the
// presentation layer.
type Snapshot struct {
	State    State  `json:"state"`
	Endpoint string `json:"endpoint"`
	Rate     int    `json:"rate"`
	Entries  int    `json:"entries"`
}

// Manager owns the single DeviceConnection.
type Manager struct {
	dialer    Dialer
	rates     map[int]bool
	telemetry *telemetry.Buffer

	mu       sync.Mutex
	state    State
	endpoint string
	rate     int
	stream   Stream
	log      []Entry
	gen      int // increments per connection; stale reader loops detect it
}

// NewManager creates a Manager. allowedRates is the fixed DataRate set;
// buf receives every inbound chunk for plotting.
func NewManager(dialer Dialer, allowedRates []int, buf *telemetry.Buffer) *Manager {
	rates := make(map[int]bool, len(allowedRates))
	for _, r := range allowedRates {
		rates[r] = true
	}
	return &Manager{
		dialer:    dialer,
		rates:     rates,
		telemetry: buf,
		state:     StateDisconnected,
	}
}

// Connect reserves endpoint at rate and opens the stream. Rejected while a
// connection exists in any state other than Disconnected; reselecting the
// endpoint requires an explicit Disconnect first.
func (m *Manager) Connect(ctx context.Context, endpoint string, rate int) error {
	if endpoint == "" {
		return ErrNoEndpoint
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	if !m.rates[rate] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrBadRate, rate)
	}
	m.state = StateConnecting
	m.endpoint = endpoint
	m.rate = rate
	m.mu.Unlock()

	stream, err := m.dialer.Dial(ctx, endpoint, rate)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateDisconnected
		m.endpoint = ""
		m.rate = 0
		return fmt.Errorf("device: connect %s: %w", endpoint, err)
	}
	if m.state != StateConnecting {
		// Torn down while the dial was in flight; release the reservation.
		stream.Close()
		return fmt.Errorf("device: connect %s: %w", endpoint, ErrNotConnected)
	}
	m.stream = stream
	m.state = StateConnected
	m.gen++
	m.log = nil
	if m.telemetry != nil {
		m.telemetry.Reset()
	}
	m.appendLocked(DirSys, fmt.Sprintf("connected to %s at %d baud", endpoint, rate))
	log.Printf("device: connected [endpoint=%s rate=%d]", endpoint, rate)

	go m.readLoop(m.gen, stream)
	return nil
}

// Disconnect tears the connection down: the stream is closed and the
// endpoint reservation released even if the channel already failed. No-op
// when already Disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	stream := m.stream
	m.state = StateDisconnecting
	m.mu.Unlock()

	var closeErr error
	if stream != nil {
		closeErr = stream.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked("disconnected")
	if closeErr != nil {
		return fmt.Errorf("device: disconnect: %w", closeErr)
	}
	return nil
}

// Send forwards text to the stream. The outbound echo is appended to the
// transcript before the write so it cannot be reordered after a racing
// reply. Rejected unless Connected.
func (m *Manager) Send(text string) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	stream := m.stream
	m.appendLocked(DirOut, text)
	m.mu.Unlock()

	if err := stream.Send(text); err != nil {
		// Transport failure: note the drop and force the connection down.
		m.mu.Lock()
		m.appendLocked(DirSys, fmt.Sprintf("send failed, message dropped: %v", err))
		m.mu.Unlock()
		m.Disconnect()
		return fmt.Errorf("device: send: %w", err)
	}
	return nil
}

// Snapshot returns the current connection view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:    m.state,
		Endpoint: m.endpoint,
		Rate:     m.rate,
		Entries:  len(m.log),
	}
}

// Transcript returns a copy of the append-only log in insertion order.
func (m *Manager) Transcript() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.log))
	copy(out, m.log)
	return out
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// readLoop drains inbound chunks in arrival order, appending each to the
// transcript and feeding the telemetry buffer. When the stream ends on its
// own (transport failure or remote close) the connection is forced back to
// Disconnected.
func (m *Manager) readLoop(gen int, stream Stream) {
	for chunk := range stream.Recv() {
		m.mu.Lock()
		if m.gen != gen {
			// A newer connection owns the transcript now.
			m.mu.Unlock()
			return
		}
		m.appendLocked(DirIn, chunk)
		m.mu.Unlock()
		if m.telemetry != nil {
			m.telemetry.Ingest(chunk)
		}
	}

	<-stream.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state == StateDisconnected {
		return
	}
	// Stream died underneath us; still release the reservation.
	stream.Close()
	if m.telemetry != nil {
		m.telemetry.Flush()
	}
	m.teardownLocked("connection lost")
	log.Printf("device: stream closed by transport [endpoint=%s]", m.endpoint)
}

// teardownLocked resets to Disconnected with a transcript note. Caller
// holds the lock.
func (m *Manager) teardownLocked(note string) {
	if m.state == StateDisconnected {
		return
	}
	m.appendLocked(DirSys, note)
	m.state = StateDisconnected
	m.stream = nil
}

// appendLocked appends one transcript entry. Caller holds the lock.
func (m *Manager) appendLocked(dir Direction, text string) {
	m.log = append(m.log, Entry{Time: time.Now(), Dir: dir, Text: text})
}
