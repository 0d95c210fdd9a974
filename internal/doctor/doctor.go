// Package doctor runs readiness diagnostics for config, capture tools, the camera, and the classifier.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/moodtune/moodtune/internal/camera"
	"github.com/moodtune/moodtune/internal/classifier"
	"github.com/moodtune/moodtune/internal/config"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		configMsg = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "owner socket directory is set", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkCommand(captureArgv(cfg.Config), "capture.command"))
	checks = append(checks, checkCameraDevice(ctx, cfg.Config))
	checks = append(checks, checkClassifierReachable(ctx, cfg.Config))

	if strings.TrimSpace(cfg.Config.Classifier.GRPCHealth) != "" {
		checks = append(checks, checkClassifierGRPC(ctx, cfg.Config))
	}

	return Report{Checks: checks}
}

func captureArgv(cfg config.Config) []string {
	if len(cfg.Capture.Command.Argv) > 0 {
		return cfg.Capture.Command.Argv
	}
	return camera.DefaultCommand
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkCameraDevice(ctx context.Context, cfg config.Config) Check {
	device, err := camera.SelectDevice(ctx, cfg.Capture.Device)
	if err != nil {
		return Check{Name: "capture.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %s", device.Path)
	if device.Name != "" {
		message = fmt.Sprintf("selected %s (%s)", device.Path, device.Name)
	}
	return Check{Name: "capture.device", Pass: true, Message: message}
}

// checkClassifierReachable only needs an HTTP answer; the service has no health route.
func checkClassifierReachable(ctx context.Context, cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Classifier.BaseURL)
	if base == "" {
		return Check{Name: "classifier.http", Pass: false, Message: "classifier.base_url is empty"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base, nil)
	if err != nil {
		return Check{Name: "classifier.http", Pass: false, Message: fmt.Sprintf("invalid url: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: "classifier.http", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Check{Name: "classifier.http", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}
	return Check{Name: "classifier.http", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", base, resp.StatusCode)}
}

func checkClassifierGRPC(ctx context.Context, cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Classifier.GRPCHealth)
	if err := classifier.CheckGRPCHealth(ctx, endpoint, "", checkTimeout); err != nil {
		return Check{Name: "classifier.grpc", Pass: false, Message: err.Error()}
	}
	return Check{Name: "classifier.grpc", Pass: true, Message: fmt.Sprintf("serving at %s", endpoint)}
}
