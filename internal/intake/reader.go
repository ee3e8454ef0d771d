package intake

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
)

// Reader loads the raw grid of one feed. Grid row i is source row i+1.
type Reader interface {
	Read(ctx context.Context, feed config.Feed) ([][]string, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, feed config.Feed) ([][]string, error)

func (f ReaderFunc) Read(ctx context.Context, feed config.Feed) ([][]string, error) {
	return f(ctx, feed)
}

const userAgent = "leadflow/1.0 (lead intake)"

// newHTTPClient returns the client shared by remote feed readers.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// defaultReaders returns the reader for every supported feed kind.
func defaultReaders(db *database.DB, client *http.Client) map[string]Reader {
	return map[string]Reader{
		config.KindCSV:   ReaderFunc(readCSV),
		config.KindRSS:   &rssReader{client: client},
		config.KindHTML:  &htmlReader{client: client},
		config.KindSheet: &sheetReader{db: db},
	}
}

// sheetReader reads a sheet table already present in the store.
type sheetReader struct {
	db *database.DB
}

func (r *sheetReader) Read(_ context.Context, feed config.Feed) ([][]string, error) {
	s, err := r.db.GetTable(feed.Location)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("sheet %s not found", feed.Location)
	}
	grid := make([][]string, 0, len(s.Rows)+1)
	grid = append(grid, s.Header)
	for _, row := range s.Rows {
		grid = append(grid, row.Cells)
	}
	return grid, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
