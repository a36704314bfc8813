package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yummy-sk/live-vision/config"
	"github.com/Yummy-sk/live-vision/internal/capture"
	"github.com/Yummy-sk/live-vision/internal/capture/camera"
	"github.com/Yummy-sk/live-vision/internal/capture/synthetic"
	"github.com/Yummy-sk/live-vision/internal/server"
	"github.com/Yummy-sk/live-vision/internal/util"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// NewServerCmd creates the server command with subcommands
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the stream server",
		Long:  `Run the WebSocket server that streams annotated camera frames.`,
	}

	cmd.AddCommand(newServerStartCmd())

	return cmd
}

// newServerStartCmd creates the 'server start' subcommand
func newServerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "start",
		Short:         "Start the server in the foreground",
		Long:          `Start the stream server and keep it running until interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServerInForeground()
		},
		Example: `  # Stream from the default camera on port 8080
  live-vision server start

  # Stream a test pattern, no camera needed
  live-vision server start --source synthetic

  # Use another camera and cascade file on port 9000
  live-vision server start -p 9000 --device 1 --model ./haarcascade_frontalface_default.xml`,
	}

	flags := cmd.Flags()
	flags.IntP("port", "p", 8080, "Server port")
	flags.String("host", "0.0.0.0", "Listen interface")
	flags.String("path", "/ws", "WebSocket upgrade path")
	flags.Int("max-connections", 16, "Maximum concurrent connections")
	flags.String("source", config.SourceCamera, "Frame source (camera or synthetic)")
	flags.Int("device", 0, "Camera device index")
	flags.String("model", "model/haarcascade_frontalface_default.xml", "Haar cascade file")
	flags.Duration("interval", capture.DefaultInterval, "Delay between captures")
	flags.Int("quality", capture.DefaultQuality, "JPEG quality (0-100)")
	flags.Int("buffer", 30, "Frames queued per connection")
	flags.String("overflow", "drop-oldest", "What to do when a client falls behind (drop-oldest or block)")

	bindings := map[string]string{
		"server.port":            "port",
		"server.host":            "host",
		"server.path":            "path",
		"server.max_connections": "max-connections",
		"capture.source":         "source",
		"capture.device":         "device",
		"capture.model_path":     "model",
		"capture.interval":       "interval",
		"capture.quality":        "quality",
		"stream.buffer":          "buffer",
		"stream.overflow":        "overflow",
	}
	for key, flag := range bindings {
		if err := config.Viper().BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}

	return cmd
}

func runServerInForeground() error {
	log := util.GetLogger().WithField("component", "cmd")

	settings, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if used := config.ConfigFileUsed(); used != "" {
		log.WithField("file", used).Info("Loaded config file")
	}

	loops, err := newLoopFactory(settings.Capture)
	if err != nil {
		return err
	}

	srv, err := server.NewStreamServer(settings, loops)
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	fmt.Printf("%s %s %s\n",
		color.New(color.FgGreen, color.Bold).Sprint("🎥 live-vision"),
		color.CyanString("➜"),
		color.BlueString("ws://%s%s", displayAddr(settings.Server), settings.Server.Path))
	fmt.Printf("%s\n", color.CyanString("Press Ctrl+C to stop..."))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrapf(err, "fail to start server on %s", settings.Server.Addr())
		}
		return nil
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.WithError(err).Warn("Error stopping server")
	}
	return nil
}

// newLoopFactory picks the frame source once; every connection gets its own
// loop and opens the source for itself
func newLoopFactory(c config.CaptureSettings) (server.LoopFactory, error) {
	var (
		source capture.Source
		codec  capture.Codec
	)

	switch c.Source {
	case config.SourceCamera:
		// A missing cascade fails each connection with 1011, not the server
		if _, err := os.Stat(c.ModelPath); err != nil {
			util.GetLogger().WithError(err).WithField("model", c.ModelPath).
				Warn("Face cascade not found, connections will be closed until it exists")
		}
		source = camera.NewSource(c.Device, c.ModelPath)
		codec = camera.Codec{}
	case config.SourceSynthetic:
		source = synthetic.NewSource()
		codec = synthetic.Codec{}
	default:
		return nil, errors.Errorf("unknown frame source %q", c.Source)
	}

	return func(log *logrus.Entry) *capture.Loop {
		return capture.NewLoop(source, codec, capture.LoopOptions{
			Interval: c.Interval,
			Quality:  c.Quality,
			Logger:   log,
		})
	}, nil
}

func displayAddr(s config.ServerSettings) string {
	if s.Host == "" || s.Host == "0.0.0.0" || s.Host == "::" {
		return fmt.Sprintf("localhost:%d", s.Port)
	}
	return s.Addr()
}
