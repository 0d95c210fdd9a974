// Package indicator renders session phases as desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/moodtune/moodtune/internal/config"
)

// Controller is the presentation-facing indicator contract.
type Controller interface {
	ShowScanning(context.Context)
	ShowAnalyzing(context.Context)
	ShowResult(ctx context.Context, emotion string, songs int)
	ShowError(context.Context, string)
	Hide(context.Context)
}

// Nop discards every indicator call.
type Nop struct{}

func (Nop) ShowScanning(context.Context)            {}
func (Nop) ShowAnalyzing(context.Context)           {}
func (Nop) ShowResult(context.Context, string, int) {}
func (Nop) ShowError(context.Context, string)       {}
func (Nop) Hide(context.Context)                    {}

// DesktopNotify shows one replaceable freedesktop notification per session.
type DesktopNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
}

// NewDesktopNotify creates an indicator from config.
func NewDesktopNotify(cfg config.IndicatorConfig, logger *slog.Logger) *DesktopNotify {
	return &DesktopNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowScanning signals that the camera is armed and emits the armed cue.
func (d *DesktopNotify) ShowScanning(ctx context.Context) {
	d.playCue(cueArmed)
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, 300000, d.messages.scanning)
	})
}

// ShowAnalyzing signals a text request in flight.
func (d *DesktopNotify) ShowAnalyzing(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, 300000, d.messages.analyzing)
	})
}

// ShowResult shows the classified emotion and emits a cue matching its mood.
func (d *DesktopNotify) ShowResult(ctx context.Context, emotion string, songs int) {
	d.playCue(resultCue(emotion))
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, 5000, d.messages.result(emotion, songs))
	})
}

// ShowError shows failure details and emits the error cue.
func (d *DesktopNotify) ShowError(ctx context.Context, text string) {
	d.playCue(cueError)
	if !d.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, timeout, text)
	})
}

// Hide dismisses the active notification.
func (d *DesktopNotify) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

// notify sends a replaceable notification and stores its ID.
func (d *DesktopNotify) notify(ctx context.Context, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.notificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "moodtune"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notificationID = id
	d.mu.Unlock()
	return nil
}

func (d *DesktopNotify) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (d *DesktopNotify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *DesktopNotify) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	go func() {
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := emitCue(ctx, kind, d.cfg); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

func (d *DesktopNotify) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
