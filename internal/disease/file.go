package disease

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// File is the on-disk form of a table. YAML and JSON are both accepted.
type File struct {
	Version  string   `json:"version,omitempty" yaml:"version,omitempty"`
	Diseases []Record `json:"diseases" yaml:"diseases"`
}

// SchemaError lists every schema violation found in a table file.
type SchemaError struct {
	Path     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid disease table %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// LoadFile reads a table from a YAML or JSON file and validates it against
// the embedded schema before building the table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read disease table: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes and validates table data. name is used in error messages.
func Parse(name string, data []byte) (*Table, error) {
	// yaml.v3 also decodes JSON documents.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse disease table %s: %w", name, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate disease table %s: %w", name, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, &SchemaError{Path: name, Problems: problems}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode disease table %s: %w", name, err)
	}
	return NewTable(f.Diseases)
}

// WriteYAML encodes the table in the file format LoadFile reads.
func (t *Table) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Version: "1", Diseases: t.records}); err != nil {
		return err
	}
	return enc.Close()
}
