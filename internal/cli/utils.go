// Package cli provides CLI utilities for kbserve.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gowows/kbserve/internal/models"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes a resolved answer to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteAnswer(w io.Writer, result *models.ResolveResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		writeAnswerText(w, result)
		return nil
	}
}

func writeAnswerText(w io.Writer, result *models.ResolveResult) {
	fmt.Fprintf(w, "%s\n", result.Answer)
	switch result.Source {
	case models.SourceExactCache:
		fmt.Fprintf(w, "\n[answer served from cache]\n")
	case models.SourceSemanticCache:
		fmt.Fprintf(w, "\n[answer reused from a similar question, similarity %.2f]\n", result.Score)
	case models.SourceGenerated:
		fmt.Fprintf(w, "\n[answer freshly generated]\n")
	}
}
