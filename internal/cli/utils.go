// Package cli provides output helpers for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// maxSourceTitle caps source titles in text output.
const maxSourceTitle = 80

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, src := range resp.Sources {
			line := fmt.Sprintf("  %d. %s", i+1, utils.Truncate(src.Title, maxSourceTitle))
			if src.URL != "" {
				line += " <" + src.URL + ">"
			}
			if src.Type != "" {
				line += " [" + src.Type + "]"
			}
			fmt.Fprintln(w, line)
		}
	}
	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\n(%s%s, %dms)\n", resp.Outcome, cached, resp.QueryTime)
	return nil
}

// WriteCacheStats writes cache statistics to w in the given format.
func WriteCacheStats(w io.Writer, stats *models.CacheStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Backend:    %s\n", stats.Backend)
	fmt.Fprintf(w, "Entries:    %d\n", stats.Entries)
	fmt.Fprintf(w, "Total hits: %d\n", stats.TotalHits)
	if !stats.Oldest.IsZero() {
		fmt.Fprintf(w, "Oldest:     %s\n", stats.Oldest.Local().Format(time.RFC3339))
	}
	return nil
}

// FormatBytes renders n bytes with a binary unit, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
