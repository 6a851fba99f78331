package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllInCascadeOrder(t *testing.T) {
	ids := make([]ID, 0, 4)
	for _, m := range All() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []ID{LeafGate, ExtractorA, ExtractorB, Meta}, ids)
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, ExtractorAFile, DefaultFilename(ExtractorA))
	assert.Equal(t, MetaFile, DefaultFilename(Meta))
	assert.Empty(t, DefaultFilename("nope"))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("extractor_b")
	require.NoError(t, err)
	assert.Equal(t, ExtractorB, id)

	_, err = ParseID("densenet")
	require.Error(t, err)
}

func TestGetModelsDirPriority(t *testing.T) {
	t.Setenv(EnvModelsDir, "/from/env")
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))
	assert.Equal(t, "/from/env", GetModelsDir(""))

	t.Setenv(EnvModelsDir, "")
	assert.True(t, filepath.Base(GetModelsDir("")) == DefaultModelsDir)
}

func TestResolveModelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/m", MetaFile), ResolveModelPath("/m", MetaFile))
	assert.Equal(t, "/abs/model.onnx", ResolveModelPath("/m", "/abs/model.onnx"))
}

func TestValidateModelExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.onnx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, ValidateModelExists(path))
	require.Error(t, ValidateModelExists(filepath.Join(dir, "missing.onnx")))
	require.Error(t, ValidateModelExists(dir))
}
