package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/oryza/internal/config"
	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/spf13/cobra"
)

// Feature widths of the demo runtime.
const (
	demoWidthA = 16
	demoWidthB = 8
)

// loadTable returns the configured disease table, or the built-in one.
func loadTable(cfg *config.Config) (*disease.Table, error) {
	if cfg.Disease.TableFile == "" {
		return disease.Default(), nil
	}
	table, err := disease.LoadFile(cfg.Disease.TableFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load disease table: %w", err)
	}
	slog.Info("disease table loaded", "file", cfg.Disease.TableFile, "classes", table.Len())
	return table, nil
}

// buildCascade wires the disease table, the model runtime and the cascade
// from cfg. With mock set no model files are needed.
func buildCascade(cfg *config.Config, mock bool) (*pipeline.Pipeline, error) {
	table, err := loadTable(cfg)
	if err != nil {
		return nil, err
	}
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}

	var rt engine.Runtime
	if mock {
		slog.Warn("using demo runtime, verdicts carry no diagnostic meaning")
		rt = engine.NewDemoRuntime(engine.DemoShapes{Classes: table.Len(), WidthA: demoWidthA, WidthB: demoWidthB})
	} else {
		ec, err := cfg.ToEngineConfig()
		if err != nil {
			return nil, err
		}
		eng, err := engine.New(ec)
		if err != nil {
			return nil, fmt.Errorf("failed to load models: %w", err)
		}
		rt = eng
	}

	p, err := pipeline.NewBuilder().WithConfig(pc).WithRuntime(rt).WithTable(table).Build()
	if err != nil {
		if eng, ok := rt.(engine.Engine); ok {
			_ = eng.Close()
		}
		return nil, fmt.Errorf("failed to build cascade: %w", err)
	}
	return p, nil
}

func mockFlag(cmd *cobra.Command) bool {
	mock, _ := cmd.Flags().GetBool("mock")
	return mock
}
