package cmd

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/smazurov/pagecast/internal/config"
	"github.com/smazurov/pagecast/internal/deps"
	"github.com/smazurov/pagecast/internal/pipeline"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *config.Options, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that ffmpeg, Chromium and the configured encoders are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}
			statuses := checkDependencies(cmd.Context(), opts)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDependencies(statuses, shouldColorize(out)))
			if !deps.Ready(statuses) {
				*code = pipeline.ExitFailure
				fmt.Fprintln(out, "Missing required dependencies.")
			}
			return nil
		},
	}
}

func checkDependencies(ctx context.Context, opts *config.Options) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{{
		Name:        "ffmpeg",
		Command:     opts.FFmpegBinary,
		Description: "Encodes and pushes the broadcast",
	}})
	statuses = append(statuses, deps.CheckChromium(opts.ChromePath))

	cfg := opts.PipelineConfig()
	wanted := []deps.Requirement{
		{Name: "Video encoder", Command: cfg.VideoCodec, Description: "Encodes captured frames"},
		{Name: "Audio encoder", Command: cfg.AudioCodec, Description: "Encodes the external audio track", Optional: cfg.AudioAssetID == ""},
	}

	if !statuses[0].Available {
		return append(statuses, unchecked(wanted, "ffmpeg unavailable")...)
	}
	encoders, err := deps.ListEncoders(ctx, statuses[0].Command)
	if err != nil {
		return append(statuses, unchecked(wanted, err.Error())...)
	}
	return append(statuses, deps.CheckEncoders(encoders, wanted...)...)
}

func unchecked(reqs []deps.Requirement, detail string) []deps.Status {
	out := make([]deps.Status, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, deps.Status{
			Name:        req.Name,
			Command:     req.Command,
			Description: req.Description,
			Optional:    req.Optional,
			Detail:      detail,
		})
	}
	return out
}

func renderDependencies(statuses []deps.Status, color bool) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s.Name, s.Command, dependencyState(s, color), s.Detail})
	}
	return renderTable([]string{"Dependency", "Command", "Status", "Detail"}, rows, nil)
}

func dependencyState(s deps.Status, color bool) string {
	switch {
	case s.Available:
		return colorize("OK", text.FgGreen, color)
	case s.Optional:
		return colorize("MISSING (optional)", text.FgYellow, color)
	default:
		return colorize("MISSING", text.FgRed, color)
	}
}
