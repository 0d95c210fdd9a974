package app

import (
	"fmt"
	"io"

	"github.com/moodtune/moodtune/internal/fsm"
	"github.com/moodtune/moodtune/internal/session"
)

func renderResult(w io.Writer, state session.State) {
	if state.Confidence > 0 {
		fmt.Fprintf(w, "mood: %s (%.0f%%)\n", state.Emotion, state.Confidence*100)
	} else {
		fmt.Fprintf(w, "mood: %s\n", state.Emotion)
	}
	if state.Details != "" {
		fmt.Fprintln(w, state.Details)
	}

	if len(state.Songs) == 0 {
		fmt.Fprintln(w, "no songs found")
		return
	}
	for i, song := range state.Songs {
		fmt.Fprintf(w, "%2d. %s - %s\n", i+1, song.Name, song.Artist)
		if song.URL != "" {
			fmt.Fprintf(w, "    %s\n", song.URL)
		}
	}
}

// renderSettled prints the payload of a finished request; other phases print nothing.
func renderSettled(w io.Writer, state session.State) {
	switch state.Phase {
	case fsm.PhaseResult:
		renderResult(w, state)
	case fsm.PhaseError:
		fmt.Fprintf(w, "details: %s\n", state.Details)
	}
}
