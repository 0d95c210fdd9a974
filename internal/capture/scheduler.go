// Package capture owns the timed webcam activation cycle.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/moodtune/moodtune/internal/session"
)

// DefaultDelay is how long the camera stays armed before the frame is grabbed.
const DefaultDelay = 5 * time.Second

// DefaultGrabTimeout bounds one frame grab after the timer fires.
const DefaultGrabTimeout = 10 * time.Second

// FailureDetails is recorded when no usable frame could be captured.
const FailureDetails = "Failed to capture image from webcam"

var errEmptyImage = errors.New("capture returned an empty image")

// State is the scheduler's own lifecycle, separate from the session phase.
type State string

const (
	StateInactive State = "inactive"
	StateArmed    State = "armed"
)

// Handle is one acquired camera.
type Handle interface {
	Snapshot(ctx context.Context) (string, error)
	Release() error
}

// Source acquires a camera for one cycle.
type Source interface {
	Acquire(ctx context.Context) (Handle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(context.Context) (Handle, error)

// Acquire implements Source.
func (f SourceFunc) Acquire(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// Machine is the session subset the scheduler drives.
type Machine interface {
	Begin(source session.Source) (session.Ticket, error)
	Fail(ticket session.Ticket, emotion, details string) error
	Withdraw(ticket session.Ticket) error
}

// Analyzer submits a captured frame.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, ticket session.Ticket, image string)
}

// Options configures a Scheduler. Zero values pick wall clock, DefaultDelay
// and DefaultGrabTimeout.
type Options struct {
	Clock       clock.Clock
	Delay       time.Duration
	GrabTimeout time.Duration
	Logger      *slog.Logger
	Context     context.Context
}

// Scheduler arms at most one single-shot timer at a time.
type Scheduler struct {
	machine  Machine
	source   Source
	analyzer Analyzer
	clock    clock.Clock
	delay    time.Duration
	grabTTL  time.Duration
	logger   *slog.Logger
	ctx      context.Context

	mu         sync.Mutex
	state      State
	gen        uint64
	timer      *clock.Timer
	handle     Handle
	ticket     session.Ticket
	cancelGrab context.CancelFunc
	done       chan struct{}
	closed     bool
}

func NewScheduler(machine Machine, source Source, analyzer Analyzer, opts Options) *Scheduler {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	grabTTL := opts.GrabTimeout
	if grabTTL <= 0 {
		grabTTL = DefaultGrabTimeout
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan struct{})
	close(done)
	return &Scheduler{
		machine:  machine,
		source:   source,
		analyzer: analyzer,
		clock:    clk,
		delay:    delay,
		grabTTL:  grabTTL,
		logger:   opts.Logger,
		ctx:      context.WithoutCancel(ctx),
		state:    StateInactive,
		done:     done,
	}
}

// State returns the scheduler lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether the timer is armed and has not fired yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Done closes when the current cycle is back to inactive.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Activate enters loading, acquires the camera and arms the timer. It reports
// whether a cycle was armed; calling it while armed does nothing.
func (s *Scheduler) Activate(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state == StateArmed {
		return false
	}

	ticket, err := s.machine.Begin(session.SourceCapture)
	if err != nil {
		s.logWarn("capture activation rejected", "error", err.Error())
		return false
	}

	handle, err := s.source.Acquire(ctx)
	if err != nil {
		s.logWarn("camera acquire failed", "request_id", ticket.RequestID, "error", err.Error())
		s.fail(ticket)
		return false
	}

	s.gen++
	gen := s.gen
	s.state = StateArmed
	s.handle = handle
	s.ticket = ticket
	s.done = make(chan struct{})
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(gen) })
	s.logInfo("capture armed", "request_id", ticket.RequestID, "delay_ms", s.delay.Milliseconds())
	return true
}

// Deactivate cancels a pending timer, releases the camera and withdraws the
// loading state. Once the timer has fired it does nothing.
func (s *Scheduler) Deactivate() bool {
	s.mu.Lock()
	if s.state != StateArmed || s.timer == nil || !s.timer.Stop() {
		s.mu.Unlock()
		return false
	}

	s.gen++
	s.timer = nil
	handle, ticket := s.handle, s.ticket
	s.handle = nil
	s.toInactiveLocked()
	s.mu.Unlock()

	s.release(handle)
	if err := s.machine.Withdraw(ticket); err != nil {
		s.logWarn("capture withdraw failed", "request_id", ticket.RequestID, "error", err.Error())
	}
	s.logInfo("capture cancelled", "request_id", ticket.RequestID)
	return true
}

// Close deactivates, stops a frame grab that is still running and refuses
// further activations. Safe to call repeatedly.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancelGrab
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.Deactivate()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	handle, ticket := s.handle, s.ticket
	s.handle = nil
	grabCtx, cancel := context.WithTimeout(s.ctx, s.grabTTL)
	s.cancelGrab = cancel
	s.mu.Unlock()

	image, err := handle.Snapshot(grabCtx)
	s.mu.Lock()
	s.cancelGrab = nil
	s.mu.Unlock()
	cancel()
	s.release(handle)

	if err == nil && image == "" {
		err = errEmptyImage
	}
	if err != nil {
		s.logWarn("camera snapshot failed",
			"request_id", ticket.RequestID,
			"error", err.Error(),
			"timed_out", errors.Is(grabCtx.Err(), context.DeadlineExceeded),
		)
		s.fail(ticket)
		s.finish(gen)
		return
	}

	s.analyzer.AnalyzeImage(s.ctx, ticket, image)
	s.finish(gen)
}

func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateArmed {
		return
	}
	s.toInactiveLocked()
}

func (s *Scheduler) toInactiveLocked() {
	s.state = StateInactive
	s.ticket = session.Ticket{}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Scheduler) fail(ticket session.Ticket) {
	if err := s.machine.Fail(ticket, "", FailureDetails); err != nil {
		s.logWarn("capture failure not recorded", "request_id", ticket.RequestID, "error", err.Error())
	}
}

func (s *Scheduler) release(handle Handle) {
	if handle == nil {
		return
	}
	if err := handle.Release(); err != nil {
		s.logWarn("camera release failed", "error", err.Error())
	}
}

func (s *Scheduler) logInfo(msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Info(msg, attrs...)
}

func (s *Scheduler) logWarn(msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, attrs...)
}
