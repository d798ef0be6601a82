// Package cmd holds the pagecast command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/smazurov/pagecast/internal/config"
	"github.com/smazurov/pagecast/internal/pipeline"
	"github.com/spf13/cobra"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	code := pipeline.ExitSuccess
	root := NewRootCmd(&code)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if code == pipeline.ExitSuccess {
			code = pipeline.ExitFailure
		}
	}
	return code
}

// NewRootCmd builds the command tree. The root command runs the broadcast;
// its exit code is stored in code.
func NewRootCmd(code *int) *cobra.Command {
	opts := &config.Options{}

	root := &cobra.Command{
		Use:   "pagecast",
		Short: "Broadcast a rendered web page to a live endpoint",
		Long: `pagecast serves a local page, renders it in headless Chromium, captures the
rendered frames and pushes them through ffmpeg to an RTMP, SRT or RTSP endpoint,
optionally muxed with an externally hosted audio track.

The process exits with ffmpeg's exit code when ffmpeg ends the broadcast and
with 0 when interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				*code = pipeline.ExitFailure
				return err
			}
			*code = runPipeline(cmd.Context(), opts)
			return nil
		},
	}

	if err := config.BindFlags(root.PersistentFlags(), opts); err != nil {
		// Options is a fixed struct; a bad tag is a programming error.
		panic(err)
	}

	root.AddCommand(
		newCheckCmd(opts, code),
		newArgsCmd(opts),
		newVersionCmd(),
	)
	return root
}
