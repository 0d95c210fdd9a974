package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/moodtune/moodtune/internal/classifier"
	"github.com/moodtune/moodtune/internal/fsm"
	"github.com/moodtune/moodtune/internal/session"
)

type fakeClassifier struct {
	resp      classifier.Response
	err       error
	lastText  string
	lastImage string
	requestID string
}

func (f *fakeClassifier) ClassifyText(ctx context.Context, text string) (classifier.Response, error) {
	f.lastText = text
	f.requestID = classifier.RequestIDFromContext(ctx)
	return f.resp, f.err
}

func (f *fakeClassifier) ClassifyFace(ctx context.Context, image string) (classifier.Response, error) {
	f.lastImage = image
	f.requestID = classifier.RequestIDFromContext(ctx)
	return f.resp, f.err
}

func TestAnalyzeTextSuccess(t *testing.T) {
	m := session.NewMachine(nil, clock.NewMock())
	fake := &fakeClassifier{resp: classifier.Response{
		Emotion:    "happy",
		Details:    "You sound upbeat",
		Confidence: 0.8,
		Songs:      []classifier.Song{{Name: "S1", Artist: "A1", URL: "u1", PreviewURL: "p1"}},
	}}
	client := NewClient(fake, m, nil)

	ticket, err := m.Begin(session.SourceText)
	require.NoError(t, err)
	client.AnalyzeText(context.Background(), ticket, "good day")

	state := m.Snapshot()
	require.Equal(t, fsm.PhaseResult, state.Phase)
	require.Equal(t, "happy", state.Emotion)
	require.Equal(t, "You sound upbeat", state.Details)
	require.Equal(t, []session.Song{{Name: "S1", Artist: "A1", URL: "u1", PreviewURL: "p1"}}, state.Songs)
	require.Equal(t, "good day", fake.lastText)
	require.Equal(t, ticket.RequestID, fake.requestID)
}

func TestAnalyzeTextEmptySongsIsResult(t *testing.T) {
	m := session.NewMachine(nil, clock.NewMock())
	client := NewClient(&fakeClassifier{resp: classifier.Response{Emotion: "calm", Details: "d"}}, m, nil)

	ticket, err := m.Begin(session.SourceText)
	require.NoError(t, err)
	client.AnalyzeText(context.Background(), ticket, "meh")

	state := m.Snapshot()
	require.Equal(t, fsm.PhaseResult, state.Phase)
	require.Empty(t, state.Songs)
}

func TestAnalyzeFailureDegradesToNeutral(t *testing.T) {
	tests := []struct {
		name    string
		run     func(*Client, session.Ticket)
		details string
	}{
		{
			name:    "text",
			run:     func(c *Client, tk session.Ticket) { c.AnalyzeText(context.Background(), tk, "hello") },
			details: TextFailureDetails,
		},
		{
			name:    "face",
			run:     func(c *Client, tk session.Ticket) { c.AnalyzeImage(context.Background(), tk, "data:image/jpeg;base64,AA") },
			details: FaceFailureDetails,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := session.NewMachine(nil, clock.NewMock())
			client := NewClient(&fakeClassifier{err: errors.New("connection refused")}, m, nil)

			ticket, err := m.Begin(session.SourceText)
			require.NoError(t, err)
			tc.run(client, ticket)

			state := m.Snapshot()
			require.Equal(t, fsm.PhaseError, state.Phase)
			require.Equal(t, FallbackEmotion, state.Emotion)
			require.Equal(t, tc.details, state.Details)
			require.Empty(t, state.Songs)
		})
	}
}

func TestAnalyzeStaleTicketIsDropped(t *testing.T) {
	m := session.NewMachine(nil, clock.NewMock())
	client := NewClient(&fakeClassifier{resp: classifier.Response{Emotion: "angry"}}, m, nil)

	stale, err := m.Begin(session.SourceCapture)
	require.NoError(t, err)
	require.NoError(t, m.Withdraw(stale))

	client.AnalyzeImage(context.Background(), stale, "data:image/jpeg;base64,AA")
	require.Equal(t, fsm.PhaseIdle, m.Snapshot().Phase)
}

func TestAnalyzeAgainstServiceStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	m := session.NewMachine(nil, clock.NewMock())
	client := NewClient(classifier.NewClient(classifier.Options{BaseURL: srv.URL}), m, nil)

	ticket, err := m.Begin(session.SourceText)
	require.NoError(t, err)
	client.AnalyzeText(context.Background(), ticket, "hello")

	state := m.Snapshot()
	require.Equal(t, fsm.PhaseError, state.Phase)
	require.Equal(t, "neutral", state.Emotion)
	require.Equal(t, "Error occurred while analyzing text", state.Details)
}
