// Package disease holds the static knowledge table indexed by class position.
package disease

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Severity grades how damaging a condition is.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Record describes one class the meta classifier can emit.
type Record struct {
	Name        string   `json:"name" yaml:"name"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	Treatment   string   `json:"treatment" yaml:"treatment"`
}

// Healthy reports whether the record is the no-disease class.
func (r Record) Healthy() bool {
	return r.Severity == SeverityNone
}

// NotLeaf is returned when the leaf gate rejects an image.
var NotLeaf = Record{
	Name:        "Not a Leaf",
	Severity:    SeverityNone,
	Description: "The image does not appear to be a rice leaf.",
	Treatment:   "Please upload a clear image of a rice leaf.",
}

// ErrIndexOutOfRange is returned by Lookup for an index outside the table.
// It signals a model whose output width disagrees with the table.
var ErrIndexOutOfRange = errors.New("class index out of range")

// Table maps class positions to records. It is read-only after construction.
type Table struct {
	records []Record
}

// NewTable validates and copies records into a table.
func NewTable(records []Record) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("disease table is empty")
	}
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("record %d: empty name", i)
		}
		if !r.Severity.Valid() {
			return nil, fmt.Errorf("record %d (%s): invalid severity %q", i, r.Name, r.Severity)
		}
		key := strings.ToLower(r.Name)
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("record %d duplicates record %d: %s", i, j, r.Name)
		}
		seen[key] = i
	}
	return &Table{records: slices.Clone(records)}, nil
}

// Len returns the number of classes.
func (t *Table) Len() int {
	return len(t.records)
}

// Lookup returns the record at class index i.
func (t *Table) Lookup(i int) (Record, error) {
	if i < 0 || i >= len(t.records) {
		return Record{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(t.records))
	}
	return t.records[i], nil
}

// Records returns a copy of all records in class order.
func (t *Table) Records() []Record {
	return slices.Clone(t.records)
}

// Index returns the class index of the named record, or -1.
func (t *Table) Index(name string) int {
	for i, r := range t.records {
		if strings.EqualFold(r.Name, name) {
			return i
		}
	}
	return -1
}
