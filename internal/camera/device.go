// Package camera discovers V4L2 devices and grabs single JPEG frames from them.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultDevDir = "/dev"
	defaultSysDir = "/sys/class/video4linux"
)

// Device describes one video capture node.
type Device struct {
	Path    string
	Name    string
	Index   int
	Default bool
}

// ListDevices returns /dev/video* nodes, lowest index first and marked default.
func ListDevices(_ context.Context) ([]Device, error) {
	return listDevicesIn(defaultDevDir, defaultSysDir)
}

// SelectDevice resolves capture.device against live devices.
func SelectDevice(ctx context.Context, preference string) (Device, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	return selectDeviceFromList(devices, preference)
}

func listDevicesIn(devDir, sysDir string) ([]Device, error) {
	matches, err := filepath.Glob(filepath.Join(devDir, "video*"))
	if err != nil {
		return nil, fmt.Errorf("glob video devices: %w", err)
	}

	devices := make([]Device, 0, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		index, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
		if err != nil {
			continue
		}
		devices = append(devices, Device{
			Path:  path,
			Name:  readDeviceName(sysDir, base),
			Index: index,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	if len(devices) > 0 {
		devices[0].Default = true
	}
	return devices, nil
}

func readDeviceName(sysDir, node string) string {
	raw, err := os.ReadFile(filepath.Join(sysDir, node, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// selectDeviceFromList picks the default for "" or "default", else matches
// an absolute path exactly or a substring of the path or name.
func selectDeviceFromList(devices []Device, preference string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, errors.New("no video capture devices found")
	}

	preference = strings.TrimSpace(preference)
	if preference == "" || strings.EqualFold(preference, "default") {
		for _, dev := range devices {
			if dev.Default {
				return dev, nil
			}
		}
		return devices[0], nil
	}

	for _, dev := range devices {
		if dev.Path == preference {
			return dev, nil
		}
	}
	term := strings.ToLower(preference)
	for _, dev := range devices {
		if deviceMatches(dev, term) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("capture.device %q did not match any device", preference)
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.Path), term) ||
		strings.Contains(strings.ToLower(device.Name), term)
}
