package disease

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
version: "2"
diseases:
  - name: Blast
    severity: high
    description: Lesions.
    treatment: Fungicide.
  - name: Healthy
    severity: none
    description: Fine.
    treatment: Nothing.
`

func TestParseYAML(t *testing.T) {
	tbl, err := Parse("inline", []byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	r, _ := tbl.Lookup(1)
	assert.Equal(t, "Healthy", r.Name)
}

func TestParseJSON(t *testing.T) {
	data := `{"diseases":[{"name":"Tungro","severity":"high","description":"d","treatment":"t"}]}`
	tbl, err := Parse("inline.json", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing diseases", `version: "1"`},
		{"empty list", `diseases: []`},
		{"bad severity", `diseases: [{name: X, severity: severe, description: d, treatment: t}]`},
		{"missing treatment", `diseases: [{name: X, severity: low, description: d}]`},
		{"unknown field", `diseases: [{name: X, severity: low, description: d, treatment: t, cost: 3}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.data))
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.NotEmpty(t, se.Problems)
			assert.Contains(t, err.Error(), "bad.yaml")
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("broken", []byte("diseases: [unclosed"))
	require.Error(t, err)
}

func TestParseDuplicateNamesRejected(t *testing.T) {
	data := `diseases:
  - {name: A, severity: low, description: d, treatment: t}
  - {name: A, severity: low, description: d, treatment: t}`
	_, err := Parse("dup", []byte(data))
	require.Error(t, err)
}

func TestWriteYAMLRoundTripsDefault(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().WriteYAML(&buf))

	path := filepath.Join(t.TempDir(), "diseases.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	tbl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Records(), tbl.Records())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
