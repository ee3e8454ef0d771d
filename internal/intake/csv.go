package intake

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/TobiSchelling/leadflow/internal/config"
)

const utf8BOM = "\ufeff"

// readCSV reads a local CSV export. Rows may have differing field counts.
func readCSV(_ context.Context, feed config.Feed) ([][]string, error) {
	f, err := os.Open(config.ExpandHome(feed.Location))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", feed.Location, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	grid, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", feed.Location, err)
	}
	if len(grid) > 0 && len(grid[0]) > 0 {
		grid[0][0] = strings.TrimPrefix(grid[0][0], utf8BOM)
	}
	return grid, nil
}
