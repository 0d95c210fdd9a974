// Package fsm holds the pure phase transition table for one analysis session.
package fsm

import "fmt"

type Phase string

type Event string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseResult  Phase = "result"
	PhaseError   Phase = "error"
)

const (
	EventTrigger Event = "trigger"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
)

// Phases lists every known phase in display order.
func Phases() []Phase {
	return []Phase{PhaseIdle, PhaseLoading, PhaseResult, PhaseError}
}

// Events lists every known event.
func Events() []Event {
	return []Event{EventTrigger, EventSucceed, EventFail}
}

func Transition(current Phase, event Event) (Phase, error) {
	switch current {
	case PhaseIdle, PhaseResult, PhaseError:
		switch event {
		case EventTrigger:
			return PhaseLoading, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseLoading:
		switch event {
		case EventSucceed:
			return PhaseResult, nil
		case EventFail:
			return PhaseError, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", phase, event)
}
