// Package session owns the single analysis state and the named operations that mutate it.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/moodtune/moodtune/internal/fsm"
)

// ErrStaleTicket is returned when a completion arrives for a request that no longer owns loading.
var ErrStaleTicket = errors.New("stale ticket")

// Ticket identifies the request that moved the machine into loading.
type Ticket struct {
	gen       uint64
	Source    Source
	RequestID string
}

// Valid reports whether the ticket was issued by Begin.
func (t Ticket) Valid() bool {
	return t.gen != 0
}

// Machine serializes every state mutation behind one mutex.
type Machine struct {
	logger *slog.Logger
	clock  clock.Clock

	mu    sync.RWMutex
	state State
	prev  State
	gen   uint64

	subs    map[int]chan State
	nextSub int
}

// NewMachine returns a machine in idle. A nil clock uses wall time.
func NewMachine(logger *slog.Logger, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		logger: logger,
		clock:  clk,
		state: State{
			Phase:     fsm.PhaseIdle,
			Songs:     []Song{},
			UpdatedAt: clk.Now(),
		},
		subs: make(map[int]chan State),
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Begin enters loading for a new request and clears the previous payload.
func (m *Machine) Begin(source Source) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fsm.Transition(m.state.Phase, fsm.EventTrigger)
	if err != nil {
		return Ticket{}, err
	}

	m.gen++
	m.prev = m.state.clone()
	ticket := Ticket{gen: m.gen, Source: source, RequestID: uuid.NewString()}
	m.setLocked(State{
		Phase:     next,
		Songs:     []Song{},
		Source:    source,
		RequestID: ticket.RequestID,
	})
	m.debug("analysis begin", ticket)
	return ticket, nil
}

// Succeed applies a classification result for the ticket's request.
func (m *Machine) Succeed(ticket Ticket, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ticket); err != nil {
		return err
	}
	next, err := fsm.Transition(m.state.Phase, fsm.EventSucceed)
	if err != nil {
		return err
	}
	m.setLocked(State{
		Phase:      next,
		Emotion:    outcome.Emotion,
		Details:    outcome.Details,
		Songs:      cloneSongs(outcome.Songs),
		Confidence: outcome.Confidence,
		Source:     ticket.Source,
		RequestID:  ticket.RequestID,
	})
	m.debug("analysis result", ticket)
	return nil
}

// Fail records a failed request. Emotion may be empty; songs are always cleared.
func (m *Machine) Fail(ticket Ticket, emotion, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ticket); err != nil {
		return err
	}
	next, err := fsm.Transition(m.state.Phase, fsm.EventFail)
	if err != nil {
		return err
	}
	m.setLocked(State{
		Phase:     next,
		Emotion:   emotion,
		Details:   details,
		Songs:     []Song{},
		Source:    ticket.Source,
		RequestID: ticket.RequestID,
	})
	m.debug("analysis error", ticket)
	return nil
}

// Withdraw restores the state captured by Begin. The ticket is spent afterwards.
func (m *Machine) Withdraw(ticket Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ticket); err != nil {
		return err
	}
	m.gen++
	prev := m.prev
	m.setLocked(prev)
	m.debug("analysis withdrawn", ticket)
	return nil
}

// Subscribe returns a channel that always holds the latest state, starting
// with the current one. Slow readers skip intermediate states.
func (m *Machine) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Machine) checkLocked(ticket Ticket) error {
	if !ticket.Valid() || ticket.gen != m.gen || !m.state.Loading() {
		return fmt.Errorf("%w: request %s", ErrStaleTicket, ticket.RequestID)
	}
	return nil
}

func (m *Machine) setLocked(next State) {
	next.UpdatedAt = m.clock.Now()
	m.state = next
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}

func (m *Machine) debug(msg string, ticket Ticket) {
	if m.logger == nil {
		return
	}
	m.logger.Debug(msg,
		"phase", string(m.state.Phase),
		"source", string(ticket.Source),
		"request_id", ticket.RequestID,
	)
}
