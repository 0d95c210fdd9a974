package config

const (
	DefaultClassifierURL = "http://127.0.0.1:5000"
	DefaultListen        = "127.0.0.1:7410"
	DefaultCaptureDelay  = 5000
	DefaultGrabTimeout   = 10000
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Classifier: ClassifierConfig{
			BaseURL: DefaultClassifierURL,
		},
		Capture: CaptureConfig{
			DelayMS:   DefaultCaptureDelay,
			TimeoutMS: DefaultGrabTimeout,
			Device:    "default",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "moodtune",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Server: ServerConfig{Listen: DefaultListen},
	}
}
