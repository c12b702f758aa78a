// Package build sequences compile and upload requests against the remote
// build service. A single BuildJob is live at a time: the phase field is
// the mutual-exclusion guard, and a request arriving while a phase is in
// flight is rejected without touching the job.
package build

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torvik/sketchbridge/internal/notify"
)

// Phase is the BuildJob state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCompiling Phase = "compiling"
	PhaseUploading Phase = "uploading"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Rejection errors, raised locally before any collaborator call.
var (
	ErrBusy       = errors.New("build: a build or upload is already in flight")
	ErrNoEndpoint = errors.New("build: no endpoint selected for upload")
	ErrEmptyCode  = errors.New("build: no source to build")
)

// Service is the remote compile/flash collaborator.
type Service interface {
	Compile(ctx context.Context, code, board string) (output string, err error)
	Flash(ctx context.Context, code, board, port string) (output string, err error)
}

// Job is the single in-flight or most-recently-completed build attempt.
type Job struct {
	ID         string    `json:"id"`
	Phase      Phase     `json:"phase"`
	Board      string    `json:"board"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Log        []string  `json:"log"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Controller owns the single BuildJob.
type Controller struct {
	svc      Service
	notifier *notify.Notifier

	mu  sync.Mutex
	job Job
}

// NewController creates a Controller in the Idle phase. notifier may be
// nil.
func NewController(svc Service, notifier *notify.Notifier) *Controller {
	return &Controller{svc: svc, notifier: notifier, job: Job{Phase: PhaseIdle}}
}

// Compile starts a compile phase for code against the board profile.
// Rejected with ErrBusy while a phase is in flight; a terminal job is
// implicitly reset to a fresh one.
func (c *Controller) Compile(ctx context.Context, code, board string) error {
	if code == "" {
		return ErrEmptyCode
	}
	if err := c.begin(PhaseCompiling, board, ""); err != nil {
		return err
	}
	c.appendLog(fmt.Sprintf("Compiling for %s...", board))
	log.Printf("build: compile started [board=%s job=%s]", board, c.Snapshot().ID)

	output, err := c.svc.Compile(ctx, code, board)
	c.finish("Compile", output, err)
	return err
}

// Upload starts an upload phase for code to the device on endpoint.
// Requires a selected endpoint; validated before the collaborator is
// contacted.
func (c *Controller) Upload(ctx context.Context, code, board, endpoint string) error {
	if code == "" {
		return ErrEmptyCode
	}
	if endpoint == "" {
		return ErrNoEndpoint
	}
	if err := c.begin(PhaseUploading, board, endpoint); err != nil {
		return err
	}
	c.appendLog(fmt.Sprintf("Uploading to %s via %s...", board, endpoint))
	log.Printf("build: upload started [board=%s endpoint=%s job=%s]", board, endpoint, c.Snapshot().ID)

	output, err := c.svc.Flash(ctx, code, board, endpoint)
	c.finish("Upload", output, err)
	return err
}

// Snapshot returns a copy of the current job.
func (c *Controller) Snapshot() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	job := c.job
	job.Log = append([]string(nil), c.job.Log...)
	return job
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Phase
}

// begin claims the single build slot, resetting a terminal job to a fresh
// one. Returns ErrBusy when a phase is in flight.
func (c *Controller) begin(phase Phase, board, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.job.Phase {
	case PhaseCompiling, PhaseUploading:
		return ErrBusy
	}
	c.job = Job{
		ID:        uuid.New().String(),
		Phase:     phase,
		Board:     board,
		Endpoint:  endpoint,
		StartedAt: time.Now(),
	}
	return nil
}

// finish records the collaborator outcome: Succeeded with output, or
// Failed with the human-readable cause appended to the log. No automatic
// retries; the job stays terminal until the next request resets it.
func (c *Controller) finish(verb, output string, err error) {
	c.mu.Lock()
	if output != "" {
		c.job.Log = append(c.job.Log, output)
	}
	if err != nil {
		c.job.Phase = PhaseFailed
		c.job.Log = append(c.job.Log, fmt.Sprintf("%s failed: %v", verb, err))
	} else {
		c.job.Phase = PhaseSucceeded
		c.job.Log = append(c.job.Log, fmt.Sprintf("%s succeeded.", verb))
	}
	c.job.FinishedAt = time.Now()
	board := c.job.Board
	c.mu.Unlock()

	if err != nil {
		log.Printf("build: %s failed [board=%s]: %v", verb, board, err)
		c.notifier.Publish(notify.Event{
			Title:    fmt.Sprintf("%s failed (%s)", verb, board),
			Detail:   err.Error(),
			Severity: notify.SeverityError,
		})
		return
	}
	log.Printf("build: %s succeeded [board=%s]", verb, board)
	c.notifier.Publish(notify.Event{
		Title:    fmt.Sprintf("%s succeeded (%s)", verb, board),
		Severity: notify.SeveritySuccess,
	})
}

// appendLog appends one synthetic marker line to the job log.
func (c *Controller) appendLog(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.job.Log = append(c.job.Log, line)
}
