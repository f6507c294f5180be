package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/voiceintake/intake/internal/config"
	"github.com/voiceintake/intake/internal/domain/export"
	"github.com/voiceintake/intake/internal/platform/httpx"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write patient exports to disk",
	}

	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Export one patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			opts, out, err := exportFlags(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				art, err := a.admin.ExportPatient(cmd.Context(), id, opts)
				if err != nil {
					return err
				}
				return writeArtifact(out, art)
			})
		},
	}
	patientCmd.Flags().String("id", "", "Patient userId")
	addExportFlags(patientCmd)
	cmd.AddCommand(patientCmd)

	cohortCmd := &cobra.Command{
		Use:   "cohort",
		Short: "Export every patient registered in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, out, err := exportFlags(cmd)
			if err != nil {
				return err
			}
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			if opts.Range, err = parseRange(start, end); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				art, err := a.admin.ExportCohort(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return writeArtifact(out, art)
			})
		},
	}
	cohortCmd.Flags().String("start", "", "First registration date (YYYY-MM-DD)")
	cohortCmd.Flags().String("end", "", "Last registration date (YYYY-MM-DD), inclusive")
	addExportFlags(cohortCmd)
	cmd.AddCommand(cohortCmd)

	return cmd
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "Output file, or a directory to write the default file name into")
	cmd.Flags().String("format", export.FormatZIP, "Output format: csv, pdf or zip")
	cmd.Flags().Bool("include-audio", true, "Include voice recordings in the archive (--include-audio=false to leave them out)")
	cmd.Flags().String("audio-format", export.AudioWAV, "Audio format: wav or original")
	cmd.Flags().Int("sample-rate", 0, "WAV sample rate in Hz (default DEFAULT_SAMPLE_RATE)")
}

func exportFlags(cmd *cobra.Command) (export.Options, string, error) {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return export.Options{}, "", fmt.Errorf("--out is required")
	}
	format, _ := cmd.Flags().GetString("format")
	includeAudio, _ := cmd.Flags().GetBool("include-audio")
	audioFormat, _ := cmd.Flags().GetString("audio-format")
	rate, _ := cmd.Flags().GetInt("sample-rate")
	return export.Options{
		Format:       format,
		IncludeAudio: includeAudio,
		AudioFormat:  audioFormat,
		SampleRate:   rate,
	}, out, nil
}

// parseRange reads inclusive calendar dates. The end date covers that day.
func parseRange(start, end string) (httpx.DateRange, error) {
	var r httpx.DateRange
	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return r, fmt.Errorf("invalid --start %q: want YYYY-MM-DD", start)
		}
		r.Start = t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return r, fmt.Errorf("invalid --end %q: want YYYY-MM-DD", end)
		}
		r.End = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, fmt.Errorf("--end is before --start")
	}
	return r, nil
}

func withApp(ctx context.Context, fn func(a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, newLogger(cfg.Env))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// writeArtifact writes art to out. When out is a directory the artifact's
// own file name is used.
func writeArtifact(out string, art *export.Artifact) error {
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, art.FileName)
	}
	if err := os.WriteFile(out, art.Data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(art.Data))
	if art.Report.Status != "" && art.Report.Status != export.ReportFull {
		fmt.Printf("Report: %s %s\n", art.Report.Status, art.Report.Error)
	}
	if art.Manifest != nil && len(art.Manifest.Skipped) > 0 {
		fmt.Printf("Skipped %d recording(s); see the manifest.\n", len(art.Manifest.Skipped))
	}
	return nil
}
