// Package config resolves, parses, validates, and defaults moodtune configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Classifier ClassifierConfig
	Capture    CaptureConfig
	Indicator  IndicatorConfig
	Server     ServerConfig
}

// ClassifierConfig locates the remote emotion-classification service.
type ClassifierConfig struct {
	BaseURL string
	// TimeoutMS bounds one request; 0 leaves it unbounded.
	TimeoutMS int
	// GRPCHealth is an optional host:port serving grpc.health.v1.
	GRPCHealth string
}

// CaptureConfig controls the timed webcam capture.
type CaptureConfig struct {
	DelayMS int
	// TimeoutMS bounds one frame grab once the delay has elapsed.
	TimeoutMS int
	Device    string
	// Command overrides the built-in frame grab; {device} is substituted.
	Command CommandConfig
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable            bool
	DesktopAppName    string
	SoundEnable       bool
	SoundArmedFile    string
	SoundCompleteFile string
	SoundErrorFile    string
	ErrorTimeoutMS    int
}

// ServerConfig controls the local HTTP API used by `serve`.
type ServerConfig struct {
	Listen string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
