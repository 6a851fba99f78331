package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/MeKo-Tech/oryza/internal/batch"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/MeKo-Tech/oryza/internal/utils"
	"github.com/spf13/cobra"
)

// classifyCmd classifies individual images in order.
var classifyCmd = &cobra.Command{
	Use:   "classify [images...]",
	Short: "Classify one or more rice leaf images",
	Long: `Classify rice leaf images and print the verdicts.

Supported formats: JPEG, PNG, BMP, GIF, WebP, TIFF

Examples:
  oryza classify leaf.jpg
  oryza classify a.png b.png --format json
  oryza classify leaf.jpg --no-gate --top-k 3`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cmd.Flags().Changed("no-gate") {
		noGate, _ := cmd.Flags().GetBool("no-gate")
		cfg.Cascade.GateEnabled = !noGate
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Cascade.LeafThreshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("top-k") {
		cfg.Cascade.TopK, _ = cmd.Flags().GetInt("top-k")
	}
	format, _ := cmd.Flags().GetString("format")

	cascade, err := buildCascade(cfg, mockFlag(cmd))
	if err != nil {
		return err
	}
	defer func() { _ = cascade.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	results := make([]pipeline.FileResult, len(args))
	var failed int
	for i, path := range args {
		results[i] = classifyFile(ctx, cascade, path)
		if results[i].Err != nil {
			failed++
		}
	}

	res := &batch.Result{Files: results, Duration: time.Since(start), WorkerCount: 1}
	if err := res.SaveResults(cmd.OutOrStdout(), format, "", true); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d image(s) could not be classified", failed, len(args))
	}
	return nil
}

func classifyFile(ctx context.Context, cascade *pipeline.Pipeline, path string) pipeline.FileResult {
	start := time.Now()
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return pipeline.FileResult{Path: path, Err: err, Duration: time.Since(start)}
	}
	res, err := cascade.RunTraced(ctx, img)
	return pipeline.FileResult{Path: path, Result: res, Err: err, Duration: time.Since(start)}
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringP("format", "f", batch.FormatText, "output format: text, json, csv")
	classifyCmd.Flags().Bool("no-gate", false, "skip the leaf gate")
	classifyCmd.Flags().Float64("threshold", 0.5, "leaf gate threshold (0..1)")
	classifyCmd.Flags().Int("top-k", 2, "number of alternative diagnoses to report")
}
