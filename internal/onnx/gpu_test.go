package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGPUConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GPUConfig
		wantErr bool
	}{
		{"cpu only", DefaultGPUConfig(), false},
		{"cpu ignores bad fields", GPUConfig{DeviceID: -1}, false},
		{"valid gpu", GPUConfig{UseGPU: true, ArenaExtendStrategy: "kSameAsRequested"}, false},
		{"negative device", GPUConfig{UseGPU: true, DeviceID: -1}, true},
		{"bad arena", GPUConfig{UseGPU: true, ArenaExtendStrategy: "grow"}, true},
		{"bad cudnn", GPUConfig{UseGPU: true, CUDNNConvAlgoSearch: "FAST"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderSettings(t *testing.T) {
	cfg := GPUConfig{UseGPU: true, DeviceID: 1, MemLimit: 1024, CUDNNConvAlgoSearch: "HEURISTIC"}
	s := cfg.providerSettings()
	assert.Equal(t, "1", s["device_id"])
	assert.Equal(t, "1024", s["gpu_mem_limit"])
	assert.Equal(t, "HEURISTIC", s["cudnn_conv_algo_search"])
	_, hasArena := s["arena_extend_strategy"]
	assert.False(t, hasArena)
}

func TestLibraryCandidatesHonoursEnv(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/custom/libonnxruntime.so")
	paths := LibraryCandidates(false)
	assert.NotEmpty(t, paths)
	assert.Equal(t, "/custom/libonnxruntime.so", paths[0])
}

func TestResolveLibraryPathMissing(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/definitely/not/here.so")
	paths := LibraryCandidates(true)
	assert.Contains(t, paths, "/definitely/not/here.so")
}
