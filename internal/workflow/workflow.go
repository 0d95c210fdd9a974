// Package workflow guards triggers and routes them to analysis or capture.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/moodtune/moodtune/internal/capture"
	"github.com/moodtune/moodtune/internal/fsm"
	"github.com/moodtune/moodtune/internal/indicator"
	"github.com/moodtune/moodtune/internal/ipc"
	"github.com/moodtune/moodtune/internal/session"
)

var (
	// ErrEmptyText is returned before any transition for blank input.
	ErrEmptyText = errors.New("text is empty")
	// ErrBusy is returned while another request owns loading.
	ErrBusy = errors.New("analysis already in progress")
)

// Scheduler is the capture subset the controller drives.
type Scheduler interface {
	Activate(ctx context.Context) bool
	Deactivate() bool
	Close()
	State() capture.State
	Done() <-chan struct{}
}

// TextAnalyzer runs one text request to completion.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, ticket session.Ticket, text string)
}

// Controller is the only entry point presentation uses to start work.
type Controller struct {
	machine   *session.Machine
	analyzer  TextAnalyzer
	scheduler Scheduler
	indicator indicator.Controller
	logger    *slog.Logger

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // closed while no text request runs

	stopObserve func()
	observed    chan struct{}
	closeOnce   sync.Once
}

// New wires the controller and starts feeding the indicator from state changes.
func New(
	machine *session.Machine,
	analyzer TextAnalyzer,
	scheduler Scheduler,
	ind indicator.Controller,
	logger *slog.Logger,
) *Controller {
	if ind == nil {
		ind = indicator.Nop{}
	}

	updates, stop := machine.Subscribe()
	idle := make(chan struct{})
	close(idle)

	c := &Controller{
		idle:        idle,
		machine:     machine,
		analyzer:    analyzer,
		scheduler:   scheduler,
		indicator:   ind,
		logger:      logger,
		stopObserve: stop,
		observed:    make(chan struct{}),
	}
	go c.observe(updates)
	return c
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() session.State {
	return c.machine.Snapshot()
}

// Subscribe streams state changes, latest value only.
func (c *Controller) Subscribe() (<-chan session.State, func()) {
	return c.machine.Subscribe()
}

// SubmitText starts a text analysis. The request outlives ctx.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	ticket, err := c.machine.Begin(session.SourceText)
	if err != nil {
		return ErrBusy
	}
	c.logInfo("text analysis submitted", "request_id", ticket.RequestID, "chars", len(text))

	reqCtx := context.WithoutCancel(ctx)
	c.track()
	go func() {
		defer c.untrack()
		c.analyzer.AnalyzeText(reqCtx, ticket, text)
	}()
	return nil
}

// ScanFace arms a capture cycle. Repeated calls while armed are accepted.
func (c *Controller) ScanFace(ctx context.Context) error {
	if c.scheduler.State() == capture.StateArmed {
		return nil
	}
	if c.machine.Snapshot().Loading() {
		return ErrBusy
	}
	if c.scheduler.Activate(ctx) {
		return nil
	}

	// Lost a race with another trigger.
	state := c.machine.Snapshot()
	if state.Loading() && state.Source == session.SourceText {
		return ErrBusy
	}
	return nil
}

// CancelScan withdraws a capture whose timer has not fired yet.
func (c *Controller) CancelScan() bool {
	return c.scheduler.Deactivate()
}

// Wait blocks until in-flight text requests and the current capture cycle finish.
// It returns ctx.Err() as soon as ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle, busy := c.idle, c.inflight > 0
		c.mu.Unlock()
		if !busy {
			break
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-c.scheduler.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) track() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++
}

func (c *Controller) untrack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		close(c.idle)
	}
}

// Close tears down the capture scheduler and stops indicator updates.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.scheduler.Close()
		c.stopObserve()
		<-c.observed
	})
}

// Handle serves owner-socket commands.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.statusResponse("")
	case ipc.CommandScan:
		if err := c.ScanFace(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.statusResponse("capture armed")
	case ipc.CommandCancel:
		if c.CancelScan() {
			return c.statusResponse("capture cancelled")
		}
		return c.statusResponse("no pending capture")
	case ipc.CommandText:
		if err := c.SubmitText(ctx, req.Text); err != nil {
			return c.errorResponse(err)
		}
		return c.statusResponse("text submitted")
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (c *Controller) statusResponse(message string) ipc.Response {
	state := c.machine.Snapshot()
	resp := ipc.Response{OK: true, State: string(state.Phase), Message: message}
	if raw, err := json.Marshal(state); err == nil {
		resp.Session = raw
	}
	return resp
}

func (c *Controller) errorResponse(err error) ipc.Response {
	return ipc.Response{OK: false, State: string(c.machine.Snapshot().Phase), Error: err.Error()}
}

func (c *Controller) observe(updates <-chan session.State) {
	defer close(c.observed)

	ctx := context.Background()
	for state := range updates {
		switch state.Phase {
		case fsm.PhaseLoading:
			if state.Source == session.SourceCapture {
				c.indicator.ShowScanning(ctx)
			} else {
				c.indicator.ShowAnalyzing(ctx)
			}
		case fsm.PhaseResult:
			c.indicator.ShowResult(ctx, state.Emotion, len(state.Songs))
		case fsm.PhaseError:
			c.indicator.ShowError(ctx, state.Details)
		case fsm.PhaseIdle:
			c.indicator.Hide(ctx)
		}
	}
}

func (c *Controller) logInfo(msg string, attrs ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Info(msg, attrs...)
}
