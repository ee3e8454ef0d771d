package intake

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
)

// Fixed columns of an RSS/Atom feed grid. Custom item elements follow,
// sorted by name.
var rssColumns = []string{"title", "author", "author_email", "link", "published", "description", "category"}

// rssReader turns a form-submission feed into a grid, one row per item.
type rssReader struct {
	client *http.Client
}

func (r *rssReader) Read(ctx context.Context, feed config.Feed) ([][]string, error) {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = r.client

	var parsed *gofeed.Feed
	var err error
	if isRemote(feed.Location) {
		parsed, err = parser.ParseURLWithContext(feed.Location, ctx)
	} else {
		var f *os.File
		f, err = os.Open(config.ExpandHome(feed.Location))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", feed.Location, err)
		}
		defer f.Close()
		parsed, err = parser.Parse(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feed.Location, err)
	}
	return itemsToGrid(parsed.Items), nil
}

func itemsToGrid(items []*gofeed.Item) [][]string {
	customSet := make(map[string]bool)
	for _, item := range items {
		for k := range item.Custom {
			customSet[k] = true
		}
	}
	custom := make([]string, 0, len(customSet))
	for k := range customSet {
		custom = append(custom, k)
	}
	sort.Strings(custom)

	header := append(append([]string(nil), rssColumns...), custom...)
	grid := [][]string{header}
	for _, item := range items {
		var name, email, category string
		if p := itemAuthor(item); p != nil {
			name, email = p.Name, p.Email
		}
		if len(item.Categories) > 0 {
			category = item.Categories[0]
		}
		published := item.Published
		if item.PublishedParsed != nil {
			published = database.FormatDateTime(item.PublishedParsed.Local())
		}
		row := []string{
			strings.TrimSpace(item.Title),
			strings.TrimSpace(name),
			strings.TrimSpace(email),
			item.Link,
			published,
			strings.TrimSpace(item.Description),
			category,
		}
		for _, k := range custom {
			row = append(row, strings.TrimSpace(item.Custom[k]))
		}
		grid = append(grid, row)
	}
	return grid
}

func itemAuthor(item *gofeed.Item) *gofeed.Person {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0]
	}
	return item.Author
}
