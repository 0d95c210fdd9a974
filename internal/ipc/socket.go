package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const socketName = "moodtune.sock"

// ErrAlreadyRunning means another owner answered on the socket.
var ErrAlreadyRunning = errors.New("moodtune owner already running")

// RuntimeSocketPath is the owner socket under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(dir, socketName), nil
}

// ClaimOptions tunes how a busy socket path is contested.
type ClaimOptions struct {
	// PingTimeout bounds the status round trip to a possible live owner.
	PingTimeout time.Duration
	// Retries is how many more listens follow a stale socket removal.
	Retries int
	// Backoff grows linearly per retry. Zero means 25ms.
	Backoff time.Duration
	// OnStale runs after a dead owner's socket file is removed.
	OnStale func(context.Context) error
}

// Claim makes the caller the owner of path. A socket file left by a dead
// owner is removed and retried. A live owner yields ErrAlreadyRunning, and a
// socket that neither answers nor refuses is left alone.
func Claim(ctx context.Context, path string, opts ClaimOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}

		listener, err := listenOwner(path)
		if err == nil {
			return listener, nil
		}
		if !isAddrInUse(err) {
			return nil, err
		}
		lastErr = err

		if err := evictStale(ctx, path, opts.PingTimeout); err != nil {
			return nil, err
		}
		if opts.OnStale != nil {
			_ = opts.OnStale(ctx)
		}
	}

	return nil, fmt.Errorf("claim socket %s after %d retries: %w", path, opts.Retries, lastErr)
}

func listenOwner(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}

// evictStale removes path only when nobody is serving on it.
func evictStale(ctx context.Context, path string, timeout time.Duration) error {
	alive, err := Ping(ctx, path, timeout)
	switch {
	case alive:
		return ErrAlreadyRunning
	case err != nil:
		return fmt.Errorf("check existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
