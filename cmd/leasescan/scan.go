package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/leasescan/internal/form"
	"github.com/platinummonkey/leasescan/internal/preprocess"
	"github.com/platinummonkey/leasescan/internal/review"
	"github.com/platinummonkey/leasescan/internal/scan"
	"github.com/platinummonkey/leasescan/internal/upload"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [image...]",
	Short: "Scan a passport page into the form",
	Long: `Recognize a passport page and fill the landlord or tenant fields.

This command:
1. Loads the image (photo, scan, PDF first page or data URL)
2. Binarizes it (unless --preprocess=false)
3. Recognizes the text with the configured engine
4. Extracts name, passport number, issue date, division code and issuing authority
5. Shows the values for review: accept, edit or discard
6. Saves accepted values to the form file

When several images are given they are scanned in order with the same
session; only the last attempt may change the form. If the engine cannot
load, fill the fields with "leasescan form set".

Examples:
  # Scan the tenant's passport
  leasescan scan --role tenant passport.jpg

  # Scan the landlord's passport from a PDF and keep the raw text
  leasescan scan --role landlord --raw-out landlord.txt scan.pdf

  # Scan a data URL exported from a browser
  leasescan scan --data-url "$(cat photo.dataurl)"`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("role", string(form.RoleTenant), "form section to fill (tenant, landlord)")
	scanCmd.Flags().String("data-url", "", "scan a data: URL instead of a file")
	scanCmd.Flags().String("raw-out", "", "append the recognized raw text to this file")
	scanCmd.Flags().Int64("max-upload-bytes", upload.DefaultMaxBytes, "maximum upload size in bytes")
	scanCmd.Flags().Int("pdf-dpi", upload.DefaultPDFDPI, "resolution PDF pages are rendered at")
	addEngineFlags(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	dataURL, _ := cmd.Flags().GetString("data-url")
	if len(args) == 0 && dataURL == "" {
		return fmt.Errorf("no image given: pass a file or --data-url")
	}

	roleName, _ := cmd.Flags().GetString("role")
	role, err := form.ParseRole(roleName)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		return fmt.Errorf("failed to open form: %w", err)
	}

	loader := upload.NewLoader(
		upload.WithMaxBytes(cfg.MaxUploadBytes),
		upload.WithPDFDPI(cfg.PDFDPI),
		upload.WithLogger(log),
	)

	// Load everything up front so a bad path fails before the engine loads.
	var images []preprocess.RawImage
	var names []string
	if dataURL != "" {
		raw, err := loader.LoadDataURL(dataURL)
		if err != nil {
			return err
		}
		images = append(images, raw)
		names = append(names, "data URL")
	}
	for _, path := range args {
		raw, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		images = append(images, raw)
		names = append(names, path)
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()

	svc, err := startService(ctx, cfg, log)
	if svc == nil {
		return err
	}
	defer svc.Close()
	if err != nil {
		warn(out, "OCR engine unavailable, fields must be entered manually: %v", err)
	}

	var sink io.Writer
	if rawOut, _ := cmd.Flags().GetString("raw-out"); rawOut != "" {
		f, err := os.OpenFile(rawOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open raw text file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	presenter := review.NewPresenter(store,
		review.NewTerminalOperator(cmd.InOrStdin(), out),
		review.WithLogger(log),
		review.WithRawTextSink(sink),
	)
	pipeline := scan.NewPipeline(spinningRecognizer{svc: svc}, presenter,
		scan.WithPreprocessor(preprocess.New(
			preprocess.WithThreshold(uint8(cfg.BinarizeThreshold)),
			preprocess.WithLogger(log),
		)),
		scan.WithPreprocessing(cfg.Preprocess),
		scan.WithLogger(log),
	)

	sess, err := scan.NewSession(role)
	if err != nil {
		return err
	}

	for i, raw := range images {
		fmt.Fprintf(out, "\nScanning %s (%dx%d %s)\n", names[i], raw.Width, raw.Height, raw.Format)
		outcome := pipeline.Process(ctx, sess, raw)
		reportOutcome(out, outcome)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if missing := store.Missing(); len(missing) > 0 {
		dimColor.Fprintf(out, "\n%d form fields still empty: %s\n", len(missing), strings.Join(missing, ", "))
	}
	return nil
}

func reportOutcome(w io.Writer, o *scan.Outcome) {
	switch o.Status {
	case scan.StatusApplied:
		success(w, "Applied %d field(s) in %s", len(o.Decision.Applied), o.Duration.Round(time.Millisecond))
		for _, k := range form.AllKeys {
			if v, ok := o.Decision.Applied[k]; ok {
				fmt.Fprintf(w, "    %-22s %s\n", k, v)
			}
		}
	case scan.StatusDiscarded:
		warn(w, "Discarded, the form was not changed")
	case scan.StatusStale:
		dimColor.Fprintln(w, "Superseded by a newer scan")
	case scan.StatusManualEntry:
		failure(w, "Recognition failed, enter the fields manually: %v", o.Err)
	}
}
