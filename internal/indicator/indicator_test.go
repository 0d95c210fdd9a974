package indicator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moodtune/moodtune/internal/config"
)

func TestDesktopNotifyDispatchSequence(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	t.Setenv("LANG", "en_US.UTF-8")
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
if [[ "${6:-}" == "Notify" ]]; then
  echo "u 42"
fi
`)

	cfg := config.Default().Indicator
	cfg.Enable = true
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 1600

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowScanning(context.Background())
	notify.ShowResult(context.Background(), "happy", 3)
	notify.ShowError(context.Background(), "")
	notify.Hide(context.Background())

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "Notify susssasa{sv}i moodtune 0  Look at the camera…  0 0 300000")
	require.Contains(t, lines[1], "Notify susssasa{sv}i moodtune 42  Feeling happy · 3 songs  0 0 5000")
	require.Contains(t, lines[2], "42  Mood analysis failed  0 0 1600")
	require.True(t, strings.HasSuffix(lines[3], "CloseNotification u 42"))
}

func TestDesktopNotifyShowErrorDefaultTimeout(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo "u 7"
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowError(context.Background(), "Failed to capture image from webcam")

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "Failed to capture image from webcam  0 0 1200")
}

func TestDesktopNotifyDisabledSkipsDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowScanning(context.Background())
	notify.ShowAnalyzing(context.Background())
	notify.ShowResult(context.Background(), "calm", 0)
	notify.ShowError(context.Background(), "ignored")
	notify.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestHideWithoutNotificationIsNoop(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	NewDesktopNotify(cfg, nil).Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestDesktopNotifyInvalidResponse(t *testing.T) {
	installBusctlStub(t, `echo "garbage"`)
	_, err := desktopNotify(context.Background(), "moodtune", 0, "hi", 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid response")
}

func TestDesktopNotifyCommandFailure(t *testing.T) {
	installBusctlStub(t, `
echo "no session bus" >&2
exit 1
`)
	_, err := desktopNotify(context.Background(), "moodtune", 0, "hi", 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no session bus")
}

func TestNopSatisfiesController(t *testing.T) {
	var c Controller = Nop{}
	c.ShowScanning(context.Background())
	c.ShowResult(context.Background(), "x", 1)
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
