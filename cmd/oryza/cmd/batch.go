package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/oryza/internal/batch"
	"github.com/MeKo-Tech/oryza/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command for parallel image classification.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Classify many images in parallel",
	Long: `Classify image files and directories with a pool of workers.
Results keep the order of discovery; failed files are reported per file.

Examples:
  oryza batch photos/
  oryza batch photos/ --recursive --workers 8
  oryza batch a.jpg b.png --format json --output results.json
  oryza batch field/ --include '*.jpg' --exclude 'thumb_*' --progress`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps the batch section and CLI flags to batch.Config.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	bc := batch.DefaultConfig()

	bc.Workers = cfg.Batch.Workers
	if cmd.Flags().Changed("workers") {
		bc.Workers, _ = cmd.Flags().GetInt("workers")
	}
	bc.ContinueOnError = cfg.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		bc.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	bc.Format = cfg.Batch.Format
	if cmd.Flags().Changed("format") {
		bc.Format, _ = cmd.Flags().GetString("format")
	}

	// File discovery, output and progress settings are CLI-only.
	bc.OutputFile, _ = cmd.Flags().GetString("output")
	bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	bc.ShowStats, _ = cmd.Flags().GetBool("stats")

	return bc
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	bc := configToBatchConfig(cfg, cmd)

	cascade, err := buildCascade(cfg, mockFlag(cmd))
	if err != nil {
		return err
	}
	defer func() { _ = cascade.Close() }()

	result, err := batch.ProcessBatch(cmd.Context(), cascade, args, bc, cmd.ErrOrStderr())
	if result == nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if saveErr := result.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.Quiet); saveErr != nil {
		return fmt.Errorf("failed to save results: %w", saveErr)
	}
	if bc.ShowStats {
		result.PrintStats(cmd.ErrOrStderr(), bc.Quiet)
	}
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	d := config.DefaultConfig().Batch

	batchCmd.Flags().StringP("format", "f", d.Format, "output format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().IntP("workers", "w", d.Workers, "number of parallel workers")
	batchCmd.Flags().Bool("continue-on-error", d.ContinueOnError, "keep going when a file fails")

	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", []string{}, "file patterns to include (e.g. '*.jpg')")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")
}
