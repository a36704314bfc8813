package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Yummy-sk/live-vision/internal/version"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Info()

			if outputFormat == "json" {
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			label := color.New(color.FgCyan)
			fmt.Printf("%s %s\n", label.Sprint("Version:   "), info["Version"])
			fmt.Printf("%s %s\n", label.Sprint("Git commit:"), info["GitCommit"])
			fmt.Printf("%s %s\n", label.Sprint("Built:     "), info["FormattedTime"])
			fmt.Printf("%s %s\n", label.Sprint("Go version:"), info["GoVersion"])
			fmt.Printf("%s %s/%s\n", label.Sprint("OS/Arch:   "), info["OS"], info["Arch"])
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text or json)")
	return cmd
}
