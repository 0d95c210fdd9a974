package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base := strings.TrimSpace(cfg.Classifier.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("classifier.base_url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("classifier.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("classifier.base_url must use http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("classifier.base_url must include a host")
	}
	if cfg.Classifier.TimeoutMS < 0 {
		return nil, fmt.Errorf("classifier.timeout_ms must be >= 0")
	}
	if health := strings.TrimSpace(cfg.Classifier.GRPCHealth); health != "" {
		if _, _, err := net.SplitHostPort(health); err != nil {
			return nil, fmt.Errorf("classifier.grpc_health must be host:port: %w", err)
		}
	}

	if cfg.Capture.DelayMS <= 0 {
		return nil, fmt.Errorf("capture.delay_ms must be > 0")
	}
	if cfg.Capture.DelayMS > 60000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("capture.delay_ms=%d keeps the camera armed for over a minute", cfg.Capture.DelayMS)})
	}
	if cfg.Capture.TimeoutMS <= 0 {
		return nil, fmt.Errorf("capture.timeout_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Capture.Command.Raw) != "" && len(cfg.Capture.Command.Argv) == 0 {
		return nil, fmt.Errorf("capture.command is configured but empty")
	}
	if len(cfg.Capture.Command.Argv) > 0 && !strings.Contains(cfg.Capture.Command.Raw, "{device}") {
		warnings = append(warnings, Warning{Message: "capture.command does not reference {device}; capture.device is ignored"})
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return nil, fmt.Errorf("server.listen must not be empty")
	}
	if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		return nil, fmt.Errorf("server.listen must be host:port: %w", err)
	}

	return warnings, nil
}
