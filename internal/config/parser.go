package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Classifier *jsoncClassifier `json:"classifier"`
	Capture    *jsoncCapture    `json:"capture"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Server     *jsoncServer     `json:"server"`
}

type jsoncClassifier struct {
	BaseURL    *string `json:"base_url"`
	TimeoutMS  *int    `json:"timeout_ms"`
	GRPCHealth *string `json:"grpc_health"`
}

type jsoncCapture struct {
	DelayMS   *int    `json:"delay_ms"`
	TimeoutMS *int    `json:"timeout_ms"`
	Device    *string `json:"device"`
	Command   *string `json:"command"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundArmedFile    *string `json:"sound_armed_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncServer struct {
	Listen *string `json:"listen"`
}

// Parse decodes JSONC content over base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// decode overlays a JSONC document onto base without validating it.
func decode(content string, base Config) (Config, error) {
	if strings.TrimSpace(content) == "" {
		return base, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if c := payload.Classifier; c != nil {
		setString(&cfg.Classifier.BaseURL, c.BaseURL)
		setInt(&cfg.Classifier.TimeoutMS, c.TimeoutMS)
		setString(&cfg.Classifier.GRPCHealth, c.GRPCHealth)
	}

	if c := payload.Capture; c != nil {
		setInt(&cfg.Capture.DelayMS, c.DelayMS)
		setInt(&cfg.Capture.TimeoutMS, c.TimeoutMS)
		setString(&cfg.Capture.Device, c.Device)
		if c.Command != nil {
			raw := *c.Command
			argv, err := splitCommand(raw)
			if err != nil {
				return fmt.Errorf("invalid capture.command: %w", err)
			}
			cfg.Capture.Command = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundArmedFile, i.SoundArmedFile)
		setString(&cfg.Indicator.SoundCompleteFile, i.SoundCompleteFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if s := payload.Server; s != nil {
		setString(&cfg.Server.Listen, s.Listen)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
