package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heimdex/heimdex-overlay/internal/logging"
	"github.com/heimdex/heimdex-overlay/internal/media"
	"github.com/heimdex/heimdex-overlay/internal/renderer"
	"github.com/heimdex/heimdex-overlay/internal/wire"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var Version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "heimdex-render",
		Short: "Headless renderer for text overlay compositions",
		Long: `heimdex-render turns an export props document into an H.264 MP4.
It is started by the overlay agent for each export and is not usually run by hand.

Examples:
  # Render a props file, writing the video into ./out
  heimdex-render render --props export-1.json --result export-1.result.json --out-dir ./out --public-dir ./uploads

  # Check that ffmpeg, ffprobe and the overlay font are usable
  heimdex-render doctor --json`,
		SilenceUsage: true,
	}

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Render a props document to MP4",
		RunE: func(cmd *cobra.Command, args []string) error {
			propsPath, _ := cmd.Flags().GetString("props")
			resultPath, _ := cmd.Flags().GetString("result")
			outDir, _ := cmd.Flags().GetString("out-dir")
			publicDir, _ := cmd.Flags().GetString("public-dir")
			fontPath, _ := cmd.Flags().GetString("font")
			workers, _ := cmd.Flags().GetInt("workers")

			props, err := renderer.ReadProps(propsPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}

			r, err := renderer.New(renderer.Config{
				PublicDir: publicDir,
				OutDir:    outDir,
				FontPath:  fontPath,
				Workers:   workers,
				Logger:    newLogger(),
			}, media.NewFFProbe(media.DefaultProbeTimeout))
			if err != nil {
				return err
			}

			res, err := r.Render(cmd.Context(), props)
			if err != nil {
				return err
			}
			if resultPath != "" {
				if err := renderer.WriteResult(resultPath, res); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), wire.OutputMarker+res.OutputFilename)
			return nil
		},
	}

	probeCmd = &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the duration, size and frame count of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := media.NewFFProbe(media.DefaultProbeTimeout).Probe(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to probe %s", args[0])
			}
			out := struct {
				*media.Info
				DurationInFrames int `json:"durationInFrames"`
			}{info, renderer.FramesFor(info)}
			return writeJSON(cmd, out, "")
		},
	}

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Check the renderer's dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			outPath, _ := cmd.Flags().GetString("out")
			fontPath, _ := cmd.Flags().GetString("font")

			rep := renderer.Doctor(cmd.Context(), Version, fontPath)
			if asJSON {
				return writeJSON(cmd, rep, outPath)
			}
			for name, dep := range rep.Executables {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-5v %s %s\n", name, dep.Available, dep.Version, dep.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-5v %s %s\n", "font", rep.Font.Available, rep.Font.Path, rep.Font.Error)
			if !rep.CanRender() {
				return errors.New("renderer is missing dependencies")
			}
			return nil
		},
	}
)

func newLogger() *slog.Logger {
	// stdout carries the OUTPUT_FILENAME marker only.
	level := os.Getenv("HEIMDEX_OVERLAY_LOG_LEVEL")
	return logging.WithComponent(logging.NewLoggerTo(os.Stderr, level), "renderer")
}

func writeJSON(cmd *cobra.Command, v any, outPath string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if outPath != "" {
		return errors.Wrap(os.WriteFile(outPath, data, 0644), "failed to write report")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func init() {
	renderCmd.Flags().String("props", "", "Export props JSON file")
	renderCmd.Flags().String("result", "", "Where to write the render result JSON")
	renderCmd.Flags().String("out-dir", "out", "Output directory")
	renderCmd.Flags().String("public-dir", "", "Directory videoData URLs resolve against")
	renderCmd.Flags().String("font", "", "TTF/OTF font for overlays (default Go Bold)")
	renderCmd.Flags().Int("workers", renderer.DefaultWorkers, "Frames painted in parallel")
	renderCmd.MarkFlagRequired("props")

	doctorCmd.Flags().Bool("json", false, "Print the report as JSON")
	doctorCmd.Flags().String("out", "", "Write the JSON report to this file instead of stdout")
	doctorCmd.Flags().String("font", "", "Font to check instead of the built-in one")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
