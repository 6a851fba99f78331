package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// formatBatchResults renders rows in the requested format.
func formatBatchResults(rows []Row, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return formatJSON(rows)
	case FormatCSV:
		return formatCSV(rows)
	case FormatText, "":
		return formatText(rows), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text, json or csv)", format)
	}
}

func formatJSON(rows []Row) (string, error) {
	out := struct {
		Images []Row `json:"images"`
		Count  int   `json:"count"`
	}{Images: rows, Count: len(rows)}
	bts, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatCSV(rows []Row) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{
		"file", "status", "disease", "severity", "confidence", "class_index", "health_status", "error",
	}); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := writer.Write([]string{
			r.File,
			r.Status,
			r.Disease,
			severityLabel(r.Severity),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			strconv.Itoa(r.ClassIndex),
			r.HealthStatus,
			r.Error,
		}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(rows []Row) string {
	var output strings.Builder
	for i, r := range rows {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", r.File)
		switch {
		case r.Error != "":
			fmt.Fprintf(&output, "error: %s\n", r.Error)
		case r.Status == "not_leaf":
			fmt.Fprintf(&output, "%s\n", r.Disease)
		default:
			fmt.Fprintf(&output, "%s (%s) %.2f%%\n", r.Disease, severityLabel(r.Severity), r.Confidence)
			fmt.Fprintf(&output, "treatment: %s\n", r.Treatment)
			for _, alt := range r.Alternatives {
				fmt.Fprintf(&output, "  also possible: %s %.2f%%\n", alt.Disease, alt.Confidence)
			}
		}
	}
	return output.String()
}

// severityLabel title-cases a severity for display ("high" -> "High").
func severityLabel(s string) string {
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(s)
}
