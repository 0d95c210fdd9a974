package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moodtune/moodtune/internal/fsm"
	"github.com/moodtune/moodtune/internal/ipc"
	"github.com/moodtune/moodtune/internal/session"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "moodtune")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteTextWithoutWordsIsUsageError(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "text", "   "})
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "text is empty")
	require.Empty(t, stdout.String())
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerCancelReturnsNoActiveSession(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "cancel"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no active moodtune session")
}

func TestRunnerForwardsCommandsToActiveOwner(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "moodtune.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "loading"}
		case ipc.CommandScan, ipc.CommandCancel, ipc.CommandText:
			return ipc.Response{OK: true, Message: req.Command + " handled"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	runner := Runner{}
	for _, args := range [][]string{{"status"}, {"scan"}, {"cancel"}, {"text", "hello", "there"}} {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner.Stdout = stdout
		runner.Stderr = stderr

		exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, args...))
		require.Equal(t, 0, exitCode, args)
		require.Empty(t, stderr.String(), args)
	}

	got := []ipc.Request{<-requests, <-requests, <-requests, <-requests}
	require.ElementsMatch(t, []ipc.Request{
		{Command: ipc.CommandStatus},
		{Command: ipc.CommandScan},
		{Command: ipc.CommandCancel},
		{Command: ipc.CommandText, Text: "hello there"},
	}, got)
}

func TestRunnerStatusPrintsOwnerResult(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	raw, err := json.Marshal(session.State{
		Phase:   fsm.PhaseResult,
		Emotion: "calm",
		Songs:   []session.Song{},
	})
	require.NoError(t, err)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "moodtune.sock"), func(_ context.Context, _ ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "result", Session: raw}
	})
	defer shutdown()

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "result\nmood: calm\nno songs found\n", stdout.String())
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "moodtune.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, ipc.CommandStatus, req.Command)
		return ipc.Response{OK: true, State: ""}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerTextOwnerPrintsSongs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/text-emotion", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "I feel great", body["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"emotion": "happy",
			"details": "Upbeat vibes",
			"songs": [{"name": "Song A", "artist": "Artist A", "url": "http://x"}]
		}`))
	}))
	t.Cleanup(server.Close)

	paths := setupRunnerEnv(t, server.URL)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "text", "I", "feel", "great"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "mood: happy")
	require.Contains(t, stdout.String(), "Upbeat vibes")
	require.Contains(t, stdout.String(), " 1. Song A - Artist A")

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "moodtune.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerTextOwnerReportsServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	paths := setupRunnerEnv(t, server.URL)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "text", "hello"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "Error occurred while analyzing text")
}

func TestRunnerScanOwnerReportsMissingCamera(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("MOODTUNE_CAPTURE_DEVICE", "definitely-not-a-camera")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "scan"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "Failed to capture image from webcam")

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "moodtune.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerServeStopsWithContext(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("MOODTUNE_LISTEN", "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(ctx, []string{"--config", paths.configPath, "serve"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "listening on http://127.0.0.1:")
}

func TestRunnerServeRefusesSecondOwner(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "moodtune.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "serve"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), ipc.ErrAlreadyRunning.Error())
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, "http://127.0.0.1:1")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "[FAIL] classifier.http")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	if exitCode == 0 {
		require.Contains(t, stdout.String(), "/dev/video")
		return
	}
	require.Equal(t, 1, exitCode)
	require.NotEmpty(t, stdout.String()+stderr.String())
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "moodtune.sock")

	shutdown := startIPCServerForRunnerTest(t, socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: "loading"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "loading", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandCancel})
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "moodtune.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "moodtune.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus})
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "forward command \"status\":")

	<-done
	require.NoError(t, listener.Close())
}

func TestLogOutcomeWritesFailureAndSuccess(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	logOutcome(logger, session.State{
		Phase:     fsm.PhaseResult,
		Emotion:   "happy",
		Songs:     []session.Song{{Name: "Song A"}},
		Source:    session.SourceText,
		RequestID: "req-1",
		UpdatedAt: time.Now(),
	})
	require.Contains(t, logBuf.String(), "analysis complete")
	require.Contains(t, logBuf.String(), `"song_count":1`)
	require.Contains(t, logBuf.String(), `"request_id":"req-1"`)

	logBuf.Reset()
	logOutcome(logger, session.State{
		Phase:   fsm.PhaseError,
		Emotion: "neutral",
		Details: "Error occurred while analyzing face",
	})
	require.Contains(t, logBuf.String(), "analysis failed")
	require.Contains(t, logBuf.String(), "analyzing face")
}

func TestRenderResult(t *testing.T) {
	var out bytes.Buffer
	renderResult(&out, session.State{
		Phase:      fsm.PhaseResult,
		Emotion:    "happy",
		Confidence: 0.87,
		Songs: []session.Song{
			{Name: "Song A", Artist: "Artist A", URL: "http://x"},
			{Name: "Song B", Artist: "Artist B"},
		},
	})
	require.Equal(t, "mood: happy (87%)\n 1. Song A - Artist A\n    http://x\n 2. Song B - Artist B\n", out.String())

	out.Reset()
	renderResult(&out, session.State{Phase: fsm.PhaseResult, Emotion: "calm", Songs: []session.Song{}})
	require.Equal(t, "mood: calm\nno songs found\n", out.String())
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

// setupRunnerEnv isolates sockets, logs, and config. An empty baseURL keeps the default.
func setupRunnerEnv(t *testing.T, baseURL string) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	for _, key := range []string{"MOODTUNE_CLASSIFIER_URL", "MOODTUNE_CAPTURE_DEVICE", "MOODTUNE_LISTEN"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	chdirDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(chdirDir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })

	content := `{
  // quiet indicator for tests
  "indicator": {"enable": false, "sound_enable": false},
}
`
	if baseURL != "" {
		content = `{
  "classifier": {"base_url": "` + baseURL + `"},
  "indicator": {"enable": false, "sound_enable": false},
}
`
	}

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
