// Package analysis turns classifier calls into session transitions.
package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/moodtune/moodtune/internal/classifier"
	"github.com/moodtune/moodtune/internal/session"
)

const (
	// FallbackEmotion is shown in the error phase; it is not a classification.
	FallbackEmotion = "neutral"

	TextFailureDetails = "Error occurred while analyzing text"
	FaceFailureDetails = "Error occurred while analyzing face"
)

// Classifier is the remote-service subset used here.
type Classifier interface {
	ClassifyText(ctx context.Context, text string) (classifier.Response, error)
	ClassifyFace(ctx context.Context, image string) (classifier.Response, error)
}

// Recorder receives completion transitions for a ticket.
type Recorder interface {
	Succeed(ticket session.Ticket, outcome session.Outcome) error
	Fail(ticket session.Ticket, emotion, details string) error
}

// Client runs one remote call per ticket and records its outcome.
type Client struct {
	classifier Classifier
	recorder   Recorder
	logger     *slog.Logger
}

func NewClient(c Classifier, r Recorder, logger *slog.Logger) *Client {
	return &Client{classifier: c, recorder: r, logger: logger}
}

// AnalyzeText classifies text and moves the ticket's request to result or error.
func (c *Client) AnalyzeText(ctx context.Context, ticket session.Ticket, text string) {
	ctx = classifier.WithRequestID(ctx, ticket.RequestID)
	resp, err := c.classifier.ClassifyText(ctx, text)
	c.complete(ticket, "text", resp, err, TextFailureDetails)
}

// AnalyzeImage classifies a base64 image data URI.
func (c *Client) AnalyzeImage(ctx context.Context, ticket session.Ticket, image string) {
	ctx = classifier.WithRequestID(ctx, ticket.RequestID)
	resp, err := c.classifier.ClassifyFace(ctx, image)
	c.complete(ticket, "face", resp, err, FaceFailureDetails)
}

func (c *Client) complete(ticket session.Ticket, kind string, resp classifier.Response, err error, failure string) {
	if err != nil {
		c.log(slog.LevelWarn, "analysis failed", ticket, kind, "error", err.Error())
		c.record(ticket, c.recorder.Fail(ticket, FallbackEmotion, failure))
		return
	}

	c.log(slog.LevelInfo, "analysis complete", ticket, kind,
		"emotion", resp.Emotion,
		"songs", len(resp.Songs),
	)
	c.record(ticket, c.recorder.Succeed(ticket, toOutcome(resp)))
}

// record drops transitions for tickets that were superseded while in flight.
func (c *Client) record(ticket session.Ticket, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, session.ErrStaleTicket) {
		c.log(slog.LevelDebug, "analysis result dropped", ticket, "", "error", err.Error())
		return
	}
	c.log(slog.LevelError, "analysis transition failed", ticket, "", "error", err.Error())
}

func (c *Client) log(level slog.Level, msg string, ticket session.Ticket, kind string, attrs ...any) {
	if c.logger == nil {
		return
	}
	args := []any{"request_id", ticket.RequestID, "source", string(ticket.Source)}
	if kind != "" {
		args = append(args, "kind", kind)
	}
	c.logger.Log(context.Background(), level, msg, append(args, attrs...)...)
}

func toOutcome(resp classifier.Response) session.Outcome {
	songs := make([]session.Song, 0, len(resp.Songs))
	for _, s := range resp.Songs {
		songs = append(songs, session.Song{
			Name:        s.Name,
			Artist:      s.Artist,
			URL:         s.URL,
			AlbumImage:  s.AlbumImage,
			ArtistImage: s.ArtistImage,
			PreviewURL:  s.PreviewURL,
		})
	}
	return session.Outcome{
		Emotion:    resp.Emotion,
		Details:    resp.Details,
		Confidence: resp.Confidence,
		Songs:      songs,
	}
}
