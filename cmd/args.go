package cmd

import (
	"fmt"

	"github.com/smazurov/pagecast/internal/audio"
	"github.com/smazurov/pagecast/internal/config"
	"github.com/smazurov/pagecast/internal/ffmpeg"
	"github.com/smazurov/pagecast/internal/process"
	"github.com/smazurov/pagecast/internal/render"
	"github.com/smazurov/pagecast/internal/transcode"
	"github.com/spf13/cobra"
)

func newArgsCmd(opts *config.Options) *cobra.Command {
	var showKey bool
	cmd := &cobra.Command{
		Use:   "args",
		Short: "Print the ffmpeg command a run would start",
		Long: `Print the ffmpeg command line for the current configuration without starting
anything. The stream key in the endpoint is masked unless --show-key is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			line, err := ffmpegCommand(opts, showKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showKey, "show-key", false, "Print the endpoint unmasked")
	return cmd
}

// ffmpegCommand renders the ffmpeg invocation a run with opts would use.
func ffmpegCommand(opts *config.Options, showKey bool) (string, error) {
	cfg := opts.PipelineConfig()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	ffmpegOptions, err := ffmpeg.ParseOptions(opts.FFmpegOptions)
	if err != nil {
		return "", err
	}
	if !showKey {
		cfg.Endpoint = cfg.RedactedEndpoint()
	}

	audioURL, _ := audio.NewResolver(opts.AudioURLTemplate).Resolve(cfg.AudioAssetID)
	supervisor := transcode.New(transcode.Options{
		Binary:        opts.FFmpegBinary,
		Output:        process.OutputMode(opts.FFmpegOutput),
		FFmpegOptions: ffmpegOptions,
	})
	return ffmpeg.CommandString(ffmpeg.BuildArgs(supervisor.Params(render.FormatMJPEG, audioURL, cfg))), nil
}
