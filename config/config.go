package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var v *viper.Viper

// Settings is the immutable startup configuration. It is resolved once by
// Load and then passed by value to everything that needs it.
type Settings struct {
	Server  ServerSettings
	Capture CaptureSettings
	Stream  StreamSettings
}

type ServerSettings struct {
	Host           string
	Port           int
	Path           string
	MaxConnections int
}

type CaptureSettings struct {
	Source    string
	Device    int
	Interval  time.Duration
	Quality   int
	ModelPath string // absolute after Load
}

type StreamSettings struct {
	Buffer       int
	Overflow     string
	WriteTimeout time.Duration
	AckMessage   string
}

// Addr returns the host:port the server listens on
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

const (
	SourceCamera    = "camera"
	SourceSynthetic = "synthetic"
)

func init() {
	v = viper.New()
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("LIVE_VISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("server.port", "LIVE_VISION_SERVER_PORT", "PORT")
	v.BindEnv("capture.model_path", "LIVE_VISION_CAPTURE_MODEL_PATH", "LIVE_VISION_MODEL")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, "live-vision"),
		"/etc/live-vision",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.max_connections", 16)

	v.SetDefault("capture.source", SourceCamera)
	v.SetDefault("capture.device", 0)
	v.SetDefault("capture.interval", 66*time.Millisecond) // ~15 fps
	v.SetDefault("capture.quality", 30)
	v.SetDefault("capture.model_path", filepath.Join("model", "haarcascade_frontalface_default.xml"))

	v.SetDefault("stream.buffer", 30)
	v.SetDefault("stream.overflow", "drop-oldest")
	v.SetDefault("stream.write_timeout", 10*time.Second)
	v.SetDefault("stream.ack_message", "Hello, WebSocket!")
}

// Viper exposes the underlying instance so commands can bind flags to keys
func Viper() *viper.Viper {
	return v
}

// ConfigFileUsed returns the config file that was read, if any
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// Load reads the current configuration, validates it and resolves the
// model path against the working directory.
func Load() (Settings, error) {
	s := Settings{
		Server: ServerSettings{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			Path:           v.GetString("server.path"),
			MaxConnections: v.GetInt("server.max_connections"),
		},
		Capture: CaptureSettings{
			Source:    strings.ToLower(v.GetString("capture.source")),
			Device:    v.GetInt("capture.device"),
			Interval:  v.GetDuration("capture.interval"),
			Quality:   v.GetInt("capture.quality"),
			ModelPath: v.GetString("capture.model_path"),
		},
		Stream: StreamSettings{
			Buffer:       v.GetInt("stream.buffer"),
			Overflow:     strings.ToLower(v.GetString("stream.overflow")),
			WriteTimeout: v.GetDuration("stream.write_timeout"),
			AckMessage:   v.GetString("stream.ack_message"),
		},
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}

	if s.Capture.ModelPath != "" && !filepath.IsAbs(s.Capture.ModelPath) {
		abs, err := filepath.Abs(s.Capture.ModelPath)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "failed to resolve model path %s", s.Capture.ModelPath)
		}
		s.Capture.ModelPath = abs
	}

	return s, nil
}

func (s Settings) validate() error {
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return errors.Errorf("invalid server.port %d", s.Server.Port)
	}
	if !strings.HasPrefix(s.Server.Path, "/") {
		return errors.Errorf("server.path must start with '/': %q", s.Server.Path)
	}
	if s.Server.MaxConnections < 1 {
		return errors.Errorf("server.max_connections must be positive, got %d", s.Server.MaxConnections)
	}

	switch s.Capture.Source {
	case SourceCamera:
		if s.Capture.ModelPath == "" {
			return errors.New("capture.model_path is required for the camera source")
		}
	case SourceSynthetic:
	default:
		return errors.Errorf("unknown capture.source %q (want %s or %s)", s.Capture.Source, SourceCamera, SourceSynthetic)
	}
	if s.Capture.Interval <= 0 {
		return errors.Errorf("capture.interval must be positive, got %s", s.Capture.Interval)
	}
	if s.Capture.Quality < 0 || s.Capture.Quality > 100 {
		return errors.Errorf("capture.quality must be within 0-100, got %d", s.Capture.Quality)
	}

	if s.Stream.Buffer < 1 {
		return errors.Errorf("stream.buffer must be positive, got %d", s.Stream.Buffer)
	}
	switch s.Stream.Overflow {
	case "drop-oldest", "block":
	default:
		return errors.Errorf("unknown stream.overflow %q (want drop-oldest or block)", s.Stream.Overflow)
	}
	if s.Stream.WriteTimeout < 0 {
		return errors.Errorf("stream.write_timeout must not be negative, got %s", s.Stream.WriteTimeout)
	}
	return nil
}
