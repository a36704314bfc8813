package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yummy-sk/live-vision/internal/client"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewWatchCmd creates the 'watch' command, a terminal client for the stream
func NewWatchCmd() *cobra.Command {
	var (
		url   string
		count int
		ping  bool
	)

	cmd := &cobra.Command{
		Use:           "watch",
		Short:         "Connect to a stream and print each frame",
		Long:          `Connect to a running live-vision server and print the size and face count of every frame received.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, client.Options{URL: url, Count: count, Ping: ping, Out: os.Stdout})
		},
		Example: `  # Watch the local server until Ctrl+C
  live-vision watch

  # Receive ten frames and check the acknowledgement
  live-vision watch --count 10 --ping`,
	}

	flags := cmd.Flags()
	flags.StringVar(&url, "url", "ws://localhost:8080/ws", "Stream URL")
	flags.IntVarP(&count, "count", "n", 0, "Stop after this many frames (0 for no limit)")
	flags.BoolVar(&ping, "ping", false, "Send a text message after connecting")

	return cmd
}

func runWatch(ctx context.Context, opts client.Options) error {
	res, err := client.NewWatcher(opts).Run(ctx)
	if err != nil {
		return err
	}

	fps := 0.0
	if secs := res.Duration.Seconds(); secs > 0 {
		fps = float64(res.Frames) / secs
	}
	fmt.Printf("\n%s %d frames, %d bytes, %d faces, %d acks (%.1f fps)\n",
		color.New(color.FgGreen, color.Bold).Sprint("Done:"),
		res.Frames, res.Bytes, res.Faces, res.Acks, fps)
	return nil
}
