package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/moodtune/moodtune/internal/config"
)

type cueKind int

const (
	cueArmed cueKind = iota + 1
	cueComplete
	cueMellow
	cueError
)

const (
	cueSampleRate = 16000
	noteGap       = 22 * time.Millisecond
	maxRamp       = 5 * time.Millisecond
)

// lowMoods resolve with a falling phrase instead of the bright one.
var lowMoods = map[string]bool{
	"sad":     true,
	"angry":   true,
	"fear":    true,
	"disgust": true,
}

// resultCue picks the completion cue for a classified emotion.
func resultCue(emotion string) cueKind {
	if lowMoods[strings.ToLower(strings.TrimSpace(emotion))] {
		return cueMellow
	}
	return cueComplete
}

type note struct {
	hz     float64
	length time.Duration
	gain   float64
}

// phrase is a run of notes separated by short silences.
type phrase []note

type cue struct {
	file  func(config.IndicatorConfig) string
	audio []int16
}

var cues = map[cueKind]cue{
	cueArmed: {
		file: func(c config.IndicatorConfig) string { return c.SoundArmedFile },
		audio: phrase{
			{hz: 660, length: 60 * time.Millisecond, gain: 0.16},
			{hz: 880, length: 60 * time.Millisecond, gain: 0.16},
			{hz: 1320, length: 80 * time.Millisecond, gain: 0.16},
		}.render(),
	},
	cueComplete: {
		file: func(c config.IndicatorConfig) string { return c.SoundCompleteFile },
		audio: phrase{
			{hz: 740, length: 65 * time.Millisecond, gain: 0.18},
			{hz: 988, length: 90 * time.Millisecond, gain: 0.18},
		}.render(),
	},
	cueMellow: {
		file: func(c config.IndicatorConfig) string { return c.SoundCompleteFile },
		audio: phrase{
			{hz: 587, length: 80 * time.Millisecond, gain: 0.16},
			{hz: 440, length: 120 * time.Millisecond, gain: 0.16},
		}.render(),
	},
	cueError: {
		file: func(c config.IndicatorConfig) string { return c.SoundErrorFile },
		audio: phrase{
			{hz: 480, length: 75 * time.Millisecond, gain: 0.18},
			{hz: 360, length: 110 * time.Millisecond, gain: 0.18},
		}.render(),
	},
}

// emitCue plays the configured file for kind, or its built-in phrase when
// no file is set or the file cannot be played.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := cues[kind]
	if !ok {
		return nil
	}
	if path := homePath(c.file(cfg)); path != "" {
		if err := playCueFile(ctx, path); err == nil {
			return nil
		}
	}
	return playPCM(c.audio)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	c, ok := cues[kind]
	if !ok {
		return ""
	}
	return homePath(c.file(cfg))
}

func cueSamples(kind cueKind) []int16 {
	return cues[kind].audio
}

// homePath expands a leading ~ to the user's home directory.
func homePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	cmd := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playPCM(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("moodtune"),
		pulse.ClientApplicationIconName("camera-web"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	rest := samples
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, rest)
		rest = rest[n:]
		if len(rest) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("moodtune indicator cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

func (p phrase) render() []int16 {
	var pcm []int16
	for i, n := range p {
		if i > 0 {
			pcm = append(pcm, make([]int16, sampleCount(noteGap))...)
		}
		pcm = append(pcm, n.render()...)
	}
	return pcm
}

// render produces a sine tone with short linear fades at both ends.
func (n note) render() []int16 {
	count := sampleCount(n.length)
	if count <= 0 || n.hz <= 0 || n.gain <= 0 {
		return nil
	}
	ramp := min(max(count/10, 1), sampleCount(maxRamp))

	pcm := make([]int16, count)
	for i := range pcm {
		edge := min(i, count-1-i)
		env := 1.0
		if edge < ramp {
			env = float64(edge) / float64(ramp)
		}
		t := float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*n.hz*t) * n.gain * env * 32767))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
