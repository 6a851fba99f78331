package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ID identifies one of the models the cascade consumes.
type ID string

// Model identifiers.
const (
	LeafGate   ID = "leaf_gate"
	ExtractorA ID = "extractor_a"
	ExtractorB ID = "extractor_b"
	Meta       ID = "meta"
)

// Default model filenames.
const (
	LeafGateFile   = "leaf_classifier.onnx"
	ExtractorAFile = "densenet169.onnx"
	ExtractorBFile = "inceptionv3.onnx"
	MetaFile       = "meta_model.onnx"
)

// DefaultModelsDir is the models directory relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "ORYZA_MODELS_DIR"

// Info describes a model artifact.
type Info struct {
	ID          ID     `json:"id"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// All lists the models in cascade order.
func All() []Info {
	return []Info{
		{ID: LeafGate, Filename: LeafGateFile, Description: "Binary rice-leaf gate"},
		{ID: ExtractorA, Filename: ExtractorAFile, Description: "DenseNet-169 feature extractor"},
		{ID: ExtractorB, Filename: ExtractorBFile, Description: "Inception-v3 feature extractor"},
		{ID: Meta, Filename: MetaFile, Description: "Stacked meta classifier"},
	}
}

// DefaultFilename returns the built-in filename for a model.
func DefaultFilename(id ID) string {
	for _, m := range All() {
		if m.ID == id {
			return m.Filename
		}
	}
	return ""
}

// ParseID validates a model identifier.
func ParseID(s string) (ID, error) {
	for _, m := range All() {
		if string(m.ID) == s {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("unknown model id %q", s)
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath resolves a model filename against the models directory.
// Absolute filenames are returned unchanged.
func ResolveModelPath(modelsDir, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(GetModelsDir(modelsDir), filename)
}

// ValidateModelExists checks that a model file is present and is not a directory.
func ValidateModelExists(modelPath string) error {
	st, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	if st.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}
