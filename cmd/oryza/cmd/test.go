package cmd

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/spf13/cobra"
)

// testCmd checks the runtime environment.
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test ONNX Runtime setup and model files",
	Long: `Check that the ONNX Runtime library loads, that every model the
cascade needs is present, and print host resource statistics.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out)

		var problems []string

		libPath, err := onnx.CheckRuntime(cfg.GPU.Enabled)
		if err != nil {
			_, _ = fmt.Fprintf(out, "❌ ONNX Runtime: %v\n", err)
			problems = append(problems, "onnx runtime")
		} else {
			_, _ = fmt.Fprintf(out, "✅ ONNX Runtime: %s\n", libPath)
		}

		paths := cfg.ModelPaths()
		for _, m := range models.All() {
			if m.ID == models.LeafGate && !cfg.Cascade.GateEnabled {
				_, _ = fmt.Fprintf(out, "➖ %-12s skipped (gate disabled)\n", m.ID)
				continue
			}
			if err := models.ValidateModelExists(paths[m.ID]); err != nil {
				_, _ = fmt.Fprintf(out, "❌ %-12s %v\n", m.ID, err)
				problems = append(problems, string(m.ID))
				continue
			}
			_, _ = fmt.Fprintf(out, "✅ %-12s %s\n", m.ID, paths[m.ID])
		}

		table, err := loadTable(cfg)
		if err != nil {
			_, _ = fmt.Fprintf(out, "❌ disease table: %v\n", err)
			problems = append(problems, "disease table")
		} else {
			_, _ = fmt.Fprintf(out, "✅ disease table: %d classes\n", table.Len())
		}

		stats := common.CollectResourceStats(cmd.Context())
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintf(out, "CPUs: %d, goroutines: %d\n", stats.HostCPUs, stats.Goroutines)
		_, _ = fmt.Fprintf(out, "Process memory: %.1f MB RSS, %.1f MB heap\n",
			float64(stats.ProcessRSSBytes)/(1<<20), float64(stats.HeapAllocBytes)/(1<<20))
		if stats.HostMemTotal > 0 {
			_, _ = fmt.Fprintf(out, "Host memory: %.1f%% used of %.1f GB\n",
				stats.HostMemUsedPct, float64(stats.HostMemTotal)/(1<<30))
		}

		if len(problems) > 0 {
			return fmt.Errorf("environment check failed: %s", strings.Join(problems, ", "))
		}
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "🎉 All checks passed. The cascade is ready for use.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
