package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvClassifierURL = "MOODTUNE_CLASSIFIER_URL"
	EnvCaptureDevice = "MOODTUNE_CAPTURE_DEVICE"
	EnvListen        = "MOODTUNE_LISTEN"

	// DotenvFile is read from the working directory when present.
	DotenvFile = ".env"
)

// applyEnvironment overlays .env values, then process environment values,
// onto cfg. The process environment wins.
func applyEnvironment(cfg *Config, dotenvPath string) ([]Warning, error) {
	values := map[string]string{}
	warnings := make([]Warning, 0)

	if dotenvPath != "" {
		fileValues, err := godotenv.Read(dotenvPath)
		switch {
		case err == nil:
			for k, v := range fileValues {
				values[k] = v
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", dotenvPath, err)
		}
	}

	for _, key := range []string{EnvClassifierURL, EnvCaptureDevice, EnvListen} {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{EnvClassifierURL, &cfg.Classifier.BaseURL},
		{EnvCaptureDevice, &cfg.Capture.Device},
		{EnvListen, &cfg.Server.Listen},
	}
	for _, o := range overrides {
		v, ok := values[o.key]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s is set but empty; ignoring", o.key)})
			continue
		}
		*o.dst = v
	}
	return warnings, nil
}
