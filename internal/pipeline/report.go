package pipeline

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/leadflow/internal/database"
)

// RenderReport assembles the markdown summary of a run.
func RenderReport(r *Result) string {
	header := fmt.Sprintf("# Run %s (%s)\n\n- Started: %s\n- Finished: %s",
		database.FormatDate(r.AsOf),
		shortID(r.RunID),
		database.FormatDateTime(r.StartedAt),
		database.FormatDateTime(r.FinishedAt),
	)

	sections := []string{header}
	for _, s := range r.Steps {
		section := "## " + s.Name + "\n\n"
		if s.Err != nil {
			section += "**Failed:** " + s.Err.Error()
		} else {
			section += s.Summary
			if s.Detail != "" {
				section += "\n\n" + strings.TrimRight(s.Detail, "\n")
			}
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
