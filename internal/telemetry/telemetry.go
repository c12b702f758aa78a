// Package telemetry turns the raw serial monitor stream into a bounded
// rolling sequence of numeric samples for the plotter.
package telemetry

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Capacity is the fixed size of the rolling sample window. Insertion beyond
// it evicts the oldest sample first.
const Capacity = 100

// numberPattern matches the first maximal signed decimal substring of a
// line: optional leading minus, digits, optional fraction.
var numberPattern = regexp.MustCompile(`-?[0-9]+(\.[0-9]+)?`)

// Sample is one parsed numeric observation.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Buffer ingests inbound text chunks and keeps the rolling sample window.
// Lines may be fragmented across chunk boundaries: a trailing partial line
// is carried as a remainder and resumed by the next chunk.
type Buffer struct {
	mu      sync.Mutex
	samples []Sample
	partial string
	now     func() time.Time
}

// NewBuffer creates an empty telemetry buffer.
func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Ingest parses one inbound chunk and returns the number of samples added.
// Chunks are processed in call order; only complete lines produce samples.
func (b *Buffer) Ingest(chunk string) int {
	if chunk == "" {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.partial + chunk
	lines := strings.Split(text, "\n")
	// The final element is either an unterminated remainder or "" when the
	// chunk ended exactly on a newline.
	b.partial = lines[len(lines)-1]
	added := 0
	for _, line := range lines[:len(lines)-1] {
		if b.ingestLine(line) {
			added++
		}
	}
	return added
}

// Flush parses any buffered remainder as a final complete line. Called when
// the stream ends, since no further chunk can extend it.
func (b *Buffer) Flush() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := b.partial
	b.partial = ""
	if line == "" {
		return 0
	}
	if b.ingestLine(line) {
		return 1
	}
	return 0
}

// Reset discards the remainder and all samples. Called when a new
// connection opens so stale plot data never bleeds between sessions.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.partial = ""
}

// Samples returns a copy of the rolling window, oldest first.
func (b *Buffer) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// ingestLine extracts the first numeric substring of line and appends a
// sample. Lines without one are ignored. Caller holds the lock.
func (b *Buffer) ingestLine(line string) bool {
	match := numberPattern.FindString(line)
	if match == "" {
		return false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return false
	}
	b.samples = append(b.samples, Sample{Time: b.now(), Value: value})
	if len(b.samples) > Capacity {
		b.samples = b.samples[len(b.samples)-Capacity:]
	}
	return true
}
