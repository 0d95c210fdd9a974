package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DevicePlaceholder in the capture command is replaced with the device path.
const DevicePlaceholder = "{device}"

// waitDelay caps how long a killed capture command may hold its output pipes.
const waitDelay = time.Second

// DataURIPrefix is prepended to the base64 JPEG frame.
const DataURIPrefix = "data:image/jpeg;base64,"

// DefaultCommand grabs one MJPEG frame from a V4L2 node to stdout.
var DefaultCommand = []string{
	"ffmpeg", "-hide_banner", "-loglevel", "error",
	"-f", "v4l2", "-i", DevicePlaceholder,
	"-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-",
}

var (
	// ErrEmptyFrame is returned when the capture command produced no bytes.
	ErrEmptyFrame = errors.New("capture produced an empty frame")
	// ErrReleased is returned by Snapshot after Release.
	ErrReleased = errors.New("camera handle released")
)

// Options configures a Camera.
type Options struct {
	Device  string
	Command []string
	Logger  *slog.Logger

	devDir string
	sysDir string
}

// Camera acquires a configured device for one capture cycle.
type Camera struct {
	preference string
	command    []string
	logger     *slog.Logger
	devDir     string
	sysDir     string
}

func New(opts Options) *Camera {
	command := opts.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	devDir, sysDir := opts.devDir, opts.sysDir
	if devDir == "" {
		devDir = defaultDevDir
	}
	if sysDir == "" {
		sysDir = defaultSysDir
	}
	return &Camera{
		preference: opts.Device,
		command:    append([]string(nil), command...),
		logger:     opts.Logger,
		devDir:     devDir,
		sysDir:     sysDir,
	}
}

// Acquire resolves the device and holds its node open until Release.
func (c *Camera) Acquire(_ context.Context) (*Handle, error) {
	devices, err := listDevicesIn(c.devDir, c.sysDir)
	if err != nil {
		return nil, err
	}
	device, err := selectDeviceFromList(devices, c.preference)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(device.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", device.Path, err)
	}
	if c.logger != nil {
		c.logger.Debug("camera acquired", "device", device.Path, "name", device.Name)
	}
	return &Handle{device: device, file: file, command: c.command, logger: c.logger}, nil
}

// Handle is one acquired camera. Release is safe to call more than once.
type Handle struct {
	device  Device
	command []string
	logger  *slog.Logger

	mu       sync.Mutex
	file     *os.File
	released bool
}

// Snapshot grabs one frame and returns it as a JPEG data URI.
func (h *Handle) Snapshot(ctx context.Context) (string, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return "", ErrReleased
	}

	argv := expandCommand(h.command, h.device.Path)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("capture frame from %s: %w", h.device.Path, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("capture frame from %s: %w: %s", h.device.Path, err, msg)
		}
		return "", fmt.Errorf("capture frame from %s: %w", h.device.Path, err)
	}

	uri, err := EncodeFrame(stdout.Bytes())
	if err != nil {
		return "", err
	}
	if h.logger != nil {
		h.logger.Debug("camera frame captured", "device", h.device.Path, "bytes", stdout.Len())
	}
	return uri, nil
}

// Release closes the device node.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if h.file == nil {
		return nil
	}
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("close camera %q: %w", h.device.Path, err)
	}
	return nil
}

// EncodeFrame validates JPEG bytes and wraps them in a data URI.
func EncodeFrame(frame []byte) (string, error) {
	if len(frame) == 0 {
		return "", ErrEmptyFrame
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err != nil {
		return "", fmt.Errorf("decode captured frame: %w", err)
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(frame), nil
}

func expandCommand(command []string, device string) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = strings.ReplaceAll(arg, DevicePlaceholder, device)
	}
	return out
}
