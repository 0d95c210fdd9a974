package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/moodtune/moodtune/internal/analysis"
	"github.com/moodtune/moodtune/internal/api"
	"github.com/moodtune/moodtune/internal/camera"
	"github.com/moodtune/moodtune/internal/capture"
	"github.com/moodtune/moodtune/internal/classifier"
	"github.com/moodtune/moodtune/internal/config"
	"github.com/moodtune/moodtune/internal/fsm"
	"github.com/moodtune/moodtune/internal/indicator"
	"github.com/moodtune/moodtune/internal/ipc"
	"github.com/moodtune/moodtune/internal/session"
	"github.com/moodtune/moodtune/internal/version"
	"github.com/moodtune/moodtune/internal/workflow"
)

// ownerClaim gives a slow owner a short grace window before its socket counts as stale.
var ownerClaim = ipc.ClaimOptions{PingTimeout: 180 * time.Millisecond, Retries: 8}

// ownerFunc runs while this process owns the socket and returns the exit code.
type ownerFunc func(ctx context.Context, controller *workflow.Controller) int

func newController(cfg config.Config, logger *slog.Logger) *workflow.Controller {
	machine := session.NewMachine(logger, clock.New())

	client := classifier.NewClient(classifier.Options{
		BaseURL:   cfg.Classifier.BaseURL,
		Timeout:   time.Duration(cfg.Classifier.TimeoutMS) * time.Millisecond,
		UserAgent: version.UserAgent(),
		Logger:    logger,
	})
	logger.Info("classifier client ready",
		"base_url", client.BaseURL(),
		"timeout_ms", cfg.Classifier.TimeoutMS,
	)
	analyzer := analysis.NewClient(client, machine, logger)

	cam := camera.New(camera.Options{
		Device:  cfg.Capture.Device,
		Command: cfg.Capture.Command.Argv,
		Logger:  logger,
	})
	source := capture.SourceFunc(func(ctx context.Context) (capture.Handle, error) {
		handle, err := cam.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return handle, nil
	})
	scheduler := capture.NewScheduler(machine, source, analyzer, capture.Options{
		Delay:       time.Duration(cfg.Capture.DelayMS) * time.Millisecond,
		GrabTimeout: time.Duration(cfg.Capture.TimeoutMS) * time.Millisecond,
		Logger:      logger,
	})

	var ind indicator.Controller = indicator.Nop{}
	if cfg.Indicator.Enable || cfg.Indicator.SoundEnable {
		ind = indicator.NewDesktopNotify(cfg.Indicator, logger)
	}

	return workflow.New(machine, analyzer, scheduler, ind, logger)
}

func (r Runner) commandText(ctx context.Context, cfg config.Config, logger *slog.Logger, text string) int {
	req := ipc.Request{Command: ipc.CommandText, Text: text}
	return r.ownOrForward(ctx, cfg, logger, req, func(ctx context.Context, c *workflow.Controller) int {
		if err := c.SubmitText(ctx, text); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		return r.awaitOutcome(ctx, c, logger)
	})
}

func (r Runner) commandScan(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	req := ipc.Request{Command: ipc.CommandScan}
	return r.ownOrForward(ctx, cfg, logger, req, func(ctx context.Context, c *workflow.Controller) int {
		if err := c.ScanFace(ctx); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if c.Snapshot().Loading() {
			fmt.Fprintf(r.Stderr, "look at the camera, capturing in %.0fs\n",
				(time.Duration(cfg.Capture.DelayMS) * time.Millisecond).Seconds())
		}
		return r.awaitOutcome(ctx, c, logger)
	})
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	socketListener, err := ipc.Claim(ctx, socketPath, ownerClaim)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	return r.runOwner(ctx, cfg, logger, socketPath, socketListener, func(ctx context.Context, c *workflow.Controller) int {
		listener, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", cfg.Server.Listen, err)
			return 1
		}
		fmt.Fprintf(r.Stdout, "listening on http://%s\n", listener.Addr())

		if err := api.Serve(ctx, listener, api.NewRouter(c, logger), logger); err != nil {
			fmt.Fprintf(r.Stderr, "error: http api failed: %v\n", err)
			return 1
		}
		return 0
	})
}

// ownOrForward hands req to a running owner, or becomes the owner and runs fn.
func (r Runner) ownOrForward(ctx context.Context, cfg config.Config, logger *slog.Logger, req ipc.Request, fn ownerFunc) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if handled {
		return r.printForwarded(resp, err)
	}

	listener, err := ipc.Claim(ctx, socketPath, ownerClaim)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, req)
			return r.printForwarded(resp, forwardErr)
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return r.runOwner(ctx, cfg, logger, socketPath, listener, fn)
}

func (r Runner) runOwner(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	socketPath string,
	listener net.Listener,
	fn ownerFunc,
) int {
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	controller := newController(cfg, logger)
	defer controller.Close()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	code := fn(ctx, controller)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return code
}

// awaitOutcome waits for the cycle to settle and prints it.
func (r Runner) awaitOutcome(ctx context.Context, c *workflow.Controller, logger *slog.Logger) int {
	if err := c.Wait(ctx); err != nil {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}

	state := c.Snapshot()
	logOutcome(logger, state)

	switch state.Phase {
	case fsm.PhaseResult:
		renderResult(r.Stdout, state)
		return 0
	case fsm.PhaseError:
		fmt.Fprintf(r.Stderr, "error: %s\n", state.Details)
		return 1
	default:
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
}
