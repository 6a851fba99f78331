package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/MeKo-Tech/oryza/internal/utils"
)

// Config is the complete configuration of the oryza service and CLI.
// It is loaded from configuration files, ORYZA_ environment variables and
// command-line flags, in increasing order of precedence.
//
//nolint:lll
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Models     ModelsConfig     `mapstructure:"models" yaml:"models" json:"models"`
	Cascade    CascadeConfig    `mapstructure:"cascade" yaml:"cascade" json:"cascade"`
	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Disease    DiseaseConfig    `mapstructure:"disease" yaml:"disease" json:"disease"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
	GPU        GPUConfig        `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// ModelsConfig locates the four model artifacts and controls their sessions.
//
//nolint:lll
type ModelsConfig struct {
	Dir              string `mapstructure:"dir" yaml:"dir" json:"dir"`
	LeafGate         string `mapstructure:"leaf_gate" yaml:"leaf_gate" json:"leaf_gate"`
	ExtractorA       string `mapstructure:"extractor_a" yaml:"extractor_a" json:"extractor_a"`
	ExtractorB       string `mapstructure:"extractor_b" yaml:"extractor_b" json:"extractor_b"`
	Meta             string `mapstructure:"meta" yaml:"meta" json:"meta"`
	LoadPolicy       string `mapstructure:"load_policy" yaml:"load_policy" json:"load_policy"`
	SessionsPerModel int    `mapstructure:"sessions_per_model" yaml:"sessions_per_model" json:"sessions_per_model"`
	WarmupIterations int    `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
	NumThreads       int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// CascadeConfig contains orchestration settings.
//
//nolint:lll
type CascadeConfig struct {
	GateEnabled   bool          `mapstructure:"gate_enabled" yaml:"gate_enabled" json:"gate_enabled"`
	LeafThreshold float64       `mapstructure:"leaf_threshold" yaml:"leaf_threshold" json:"leaf_threshold"`
	Stages        []string      `mapstructure:"stages" yaml:"stages" json:"stages"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	TopK          int           `mapstructure:"top_k" yaml:"top_k" json:"top_k"`
}

// PreprocessConfig contains image preprocessing settings.
type PreprocessConfig struct {
	Size   int    `mapstructure:"size" yaml:"size" json:"size"`
	Filter string `mapstructure:"filter" yaml:"filter" json:"filter"`
	Layout string `mapstructure:"layout" yaml:"layout" json:"layout"`
	Pooled bool   `mapstructure:"pooled" yaml:"pooled" json:"pooled"`
}

// DiseaseConfig selects the disease table. An empty TableFile means the
// built-in table.
type DiseaseConfig struct {
	TableFile string `mapstructure:"table_file" yaml:"table_file" json:"table_file"`
}

// ServerConfig contains HTTP server settings.
//
//nolint:lll
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client quotas.
//
//nolint:lll
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch classification settings.
//
//nolint:lll
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// EnvPort is the plain port variable honoured by hosting platforms.
const EnvPort = "PORT"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	ec := engine.DefaultConfig()
	pc := pipeline.DefaultConfig()
	return Config{
		LogLevel: "info",
		Models: ModelsConfig{
			Dir:              models.DefaultModelsDir,
			LeafGate:         models.LeafGateFile,
			ExtractorA:       models.ExtractorAFile,
			ExtractorB:       models.ExtractorBFile,
			Meta:             models.MetaFile,
			LoadPolicy:       string(ec.Policy),
			SessionsPerModel: ec.SessionsPerModel,
			WarmupIterations: ec.WarmupIterations,
			NumThreads:       ec.NumThreads,
		},
		Cascade: CascadeConfig{
			GateEnabled:   true,
			LeafThreshold: float64(pc.LeafThreshold),
			Stages:        []string{"gate", "fuse", "classify"},
			Timeout:       pc.Timeout,
			TopK:          pc.TopK,
		},
		Preprocess: PreprocessConfig{
			Size:   pc.Preprocess.Size,
			Filter: pc.Preprocess.Filter,
			Layout: string(pc.Preprocess.Layout),
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            10000,
			CORSOrigin:      "*",
			MaxUploadMB:     10,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDayMB:   1024,
			},
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: true,
			Format:          "text",
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Batch.Format != "" && !slices.Contains(validFormats, c.Batch.Format) {
		return fmt.Errorf("invalid batch format: %s (must be one of: %s)", c.Batch.Format, strings.Join(validFormats, ", "))
	}

	if c.Cascade.LeafThreshold < 0 || c.Cascade.LeafThreshold > 1 {
		return fmt.Errorf("invalid cascade.leaf_threshold: %.2f (must be between 0.0 and 1.0)", c.Cascade.LeafThreshold)
	}
	if c.Cascade.Timeout < 0 {
		return fmt.Errorf("invalid cascade.timeout: %v (must not be negative)", c.Cascade.Timeout)
	}
	if _, err := engine.ParseLoadPolicy(c.Models.LoadPolicy); err != nil {
		return err
	}
	if c.Models.SessionsPerModel <= 0 {
		return fmt.Errorf("invalid models.sessions_per_model: %d (must be positive)", c.Models.SessionsPerModel)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	if _, err := c.ToGPUConfig(); err != nil {
		return err
	}
	pc, err := c.ToPipelineConfig()
	if err != nil {
		return err
	}
	return pc.Validate()
}

// ApplyEnvPort lets PORT override server.port.
func (c *Config) ApplyEnvPort() error {
	raw, ok := os.LookupEnv(EnvPort)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %q", EnvPort, raw)
	}
	c.Server.Port = port
	return nil
}

// ModelPaths returns the resolved artifact path for each model.
func (c *Config) ModelPaths() map[models.ID]string {
	return map[models.ID]string{
		models.LeafGate:   models.ResolveModelPath(c.Models.Dir, c.Models.LeafGate),
		models.ExtractorA: models.ResolveModelPath(c.Models.Dir, c.Models.ExtractorA),
		models.ExtractorB: models.ResolveModelPath(c.Models.Dir, c.Models.ExtractorB),
		models.Meta:       models.ResolveModelPath(c.Models.Dir, c.Models.Meta),
	}
}

// ToEngineConfig converts to the model registry configuration. The leaf gate
// model is only registered when the cascade uses it.
func (c *Config) ToEngineConfig() (engine.Config, error) {
	policy, err := engine.ParseLoadPolicy(c.Models.LoadPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	gpu, err := c.ToGPUConfig()
	if err != nil {
		return engine.Config{}, err
	}

	pc, err := c.ToPipelineConfig()
	if err != nil {
		return engine.Config{}, err
	}
	paths := c.ModelPaths()
	ids := []models.ID{models.ExtractorA, models.ExtractorB, models.Meta}
	if pc.GateEnabled() {
		ids = append([]models.ID{models.LeafGate}, ids...)
	}
	specs := make([]engine.ModelSpec, 0, len(ids))
	for _, id := range ids {
		specs = append(specs, engine.ModelSpec{ID: id, Path: paths[id]})
	}

	return engine.Config{
		Models:           specs,
		Policy:           policy,
		SessionsPerModel: c.Models.SessionsPerModel,
		NumThreads:       c.Models.NumThreads,
		WarmupIterations: c.Models.WarmupIterations,
		GPU:              gpu,
	}, nil
}

// ToPipelineConfig converts to the cascade configuration. A disabled gate
// removes the gate stage even when it is listed.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	names := c.Cascade.Stages
	if len(names) == 0 {
		names = []string{"gate", "fuse", "classify"}
	}
	stages, err := pipeline.ParseStages(names)
	if err != nil {
		return pipeline.Config{}, err
	}
	if !c.Cascade.GateEnabled {
		stages = slices.DeleteFunc(stages, func(s pipeline.Stage) bool { return s == pipeline.StageGate })
	}
	cfg.Stages = stages
	cfg.LeafThreshold = float32(c.Cascade.LeafThreshold)
	cfg.Timeout = c.Cascade.Timeout
	cfg.TopK = c.Cascade.TopK

	layout, err := onnx.ParseLayout(c.Preprocess.Layout)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg.Preprocess = utils.PreprocessOptions{
		Size:   c.Preprocess.Size,
		Filter: c.Preprocess.Filter,
		Layout: layout,
		Pooled: c.Preprocess.Pooled,
	}
	return cfg, nil
}

// ToGPUConfig converts to the ONNX Runtime GPU settings.
func (c *Config) ToGPUConfig() (onnx.GPUConfig, error) {
	cfg := onnx.DefaultGPUConfig()
	cfg.UseGPU = c.GPU.Enabled
	cfg.DeviceID = c.GPU.Device
	limit, err := ParseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return onnx.GPUConfig{}, fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	cfg.MemLimit = limit
	if err := cfg.Validate(); err != nil {
		return onnx.GPUConfig{}, err
	}
	return cfg, nil
}

// ParseMemoryLimit parses sizes such as "512MB" or "2GB". Empty and "auto"
// mean no limit.
func ParseMemoryLimit(limit string) (uint64, error) {
	limit = strings.ToUpper(strings.TrimSpace(limit))
	if limit == "" || limit == "AUTO" {
		return 0, nil
	}

	units := []struct {
		suffix string
		mult   float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(limit, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSuffix(limit, u.suffix), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.mult), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
