package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/oryza/internal/benchmark"
	"github.com/MeKo-Tech/oryza/internal/config"
	"github.com/MeKo-Tech/oryza/internal/utils"
	"github.com/spf13/cobra"
)

// benchmarkCmd times the cascade on one image.
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark [image]",
	Short: "Measure cascade latency",
	Long: `Run the cascade repeatedly on one image and report latency percentiles,
throughput and the mean time spent in each stage.

Without an image a synthetic leaf is used.

Examples:
  oryza benchmark --mock
  oryza benchmark leaf.jpg --iterations 50
  oryza benchmark leaf.jpg --compare-gate
  oryza benchmark leaf.jpg --compare-gpu --json`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runBenchmark,
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	iterations, _ := cmd.Flags().GetInt("iterations")
	warmup, _ := cmd.Flags().GetInt("warmup")
	compareGate, _ := cmd.Flags().GetBool("compare-gate")
	compareGPU, _ := cmd.Flags().GetBool("compare-gpu")
	asJSON, _ := cmd.Flags().GetBool("json")
	mock := mockFlag(cmd)

	if iterations < 1 {
		return errors.New("--iterations must be at least 1")
	}
	if compareGate && compareGPU {
		return errors.New("--compare-gate and --compare-gpu are mutually exclusive")
	}
	if compareGPU && mock {
		return errors.New("--compare-gpu needs real models")
	}

	var img image.Image = benchmark.SyntheticLeaf(640, 480)
	if len(args) == 1 {
		loaded, _, err := utils.LoadImage(args[0])
		if err != nil {
			return err
		}
		img = loaded
	}

	variants := []struct {
		name string
		cfg  *config.Config
	}{{name: "cascade", cfg: cfg}}
	switch {
	case compareGate:
		noGate := *cfg
		noGate.Cascade.GateEnabled = false
		variants[0].name = "gate"
		variants = append(variants, struct {
			name string
			cfg  *config.Config
		}{"no-gate", &noGate})
	case compareGPU:
		cpu, gpu := *cfg, *cfg
		cpu.GPU.Enabled = false
		gpu.GPU.Enabled = true
		variants[0].name, variants[0].cfg = "cpu", &cpu
		variants = append(variants, struct {
			name string
			cfg  *config.Config
		}{"gpu", &gpu})
	}

	suite := benchmark.NewSuite()
	for _, v := range variants {
		cascade, err := buildCascade(v.cfg, mock)
		if err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
		defer func() { _ = cascade.Close() }()
		suite.Add(v.name, cascade, img)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results := suite.RunAll(ctx, benchmark.Config{Iterations: iterations, Warmup: warmup})

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		benchmark.WriteReport(out, results)
	}

	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("benchmark %s failed: %s", r.Name, r.Error)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)
	benchmarkCmd.Flags().IntP("iterations", "n", benchmark.DefaultConfig().Iterations, "timed runs per variant")
	benchmarkCmd.Flags().Int("warmup", benchmark.DefaultConfig().Warmup, "untimed runs before measuring")
	benchmarkCmd.Flags().Bool("compare-gate", false, "also run with the leaf gate disabled")
	benchmarkCmd.Flags().Bool("compare-gpu", false, "run once on CPU and once with the CUDA provider")
	benchmarkCmd.Flags().Bool("json", false, "print results as JSON")
}
