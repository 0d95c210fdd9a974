package session

import (
	"time"

	"github.com/moodtune/moodtune/internal/fsm"
)

// Source names the trigger that produced a state.
type Source string

const (
	SourceText    Source = "text"
	SourceCapture Source = "capture"
)

// Song is one pass-through recommendation from the classifier.
type Song struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	URL         string `json:"url"`
	AlbumImage  string `json:"album_image,omitempty"`
	ArtistImage string `json:"artist_image,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// State is the shared result/loading value rendered by presentation.
type State struct {
	Phase      fsm.Phase `json:"phase"`
	Emotion    string    `json:"emotion,omitempty"`
	Details    string    `json:"details,omitempty"`
	Songs      []Song    `json:"songs"`
	Confidence float64   `json:"confidence,omitempty"`
	Source     Source    `json:"source,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Outcome is a successful classification ready to be applied.
type Outcome struct {
	Emotion    string
	Details    string
	Confidence float64
	Songs      []Song
}

// Loading reports whether a request is outstanding.
func (s State) Loading() bool {
	return s.Phase == fsm.PhaseLoading
}

func (s State) clone() State {
	out := s
	out.Songs = cloneSongs(s.Songs)
	return out
}

func cloneSongs(songs []Song) []Song {
	out := make([]Song, len(songs))
	copy(out, songs)
	return out
}
