package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/leadflow/internal/config"
)

// htmlReader reads the first table of a published HTML page. The page's
// main content is isolated with readability first; when that drops the
// table the whole document is searched.
type htmlReader struct {
	client *http.Client
}

func (r *htmlReader) Read(ctx context.Context, feed config.Feed) ([][]string, error) {
	body, pageURL, err := r.load(ctx, feed.Location)
	if err != nil {
		return nil, err
	}

	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil && article.Content != "" {
		if grid, ok := firstTable(strings.NewReader(article.Content)); ok {
			return grid, nil
		}
	}
	if grid, ok := firstTable(bytes.NewReader(body)); ok {
		return grid, nil
	}
	return nil, fmt.Errorf("no table found in %s", feed.Location)
}

func (r *htmlReader) load(ctx context.Context, location string) ([]byte, *url.URL, error) {
	if !isRemote(location) {
		path := config.ExpandHome(location)
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", location, err)
		}
		return body, &url.URL{Scheme: "file", Path: path}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("fetching %s: %s", location, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return body, resp.Request.URL, nil
}

// firstTable extracts the rows of the first <table> in an HTML document.
func firstTable(doc io.Reader) ([][]string, bool) {
	d, err := goquery.NewDocumentFromReader(doc)
	if err != nil {
		return nil, false
	}
	table := d.Find("table").First()
	if table.Length() == 0 {
		return nil, false
	}

	var grid [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, strings.Join(strings.Fields(cell.Text()), " "))
		})
		grid = append(grid, row)
	})
	return grid, len(grid) > 0
}
