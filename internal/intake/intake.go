// Package intake reads lead rows from configured feeds and merges them into
// the canonical customer and lead source tables.
package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/identity"
)

const maxConcurrentFetches = 4

// Counts tallies intake outcomes for a feed or a whole run.
type Counts struct {
	Processed        int
	NewCustomers     int
	UpdatedCustomers int
	NewSources       int
	Skipped          int
	Errors           int
}

func (c *Counts) add(o Counts) {
	c.Processed += o.Processed
	c.NewCustomers += o.NewCustomers
	c.UpdatedCustomers += o.UpdatedCustomers
	c.NewSources += o.NewSources
	c.Skipped += o.Skipped
	c.Errors += o.Errors
}

// FeedResult is the outcome of ingesting one feed. Err is set when the feed
// could not be read at all.
type FeedResult struct {
	Name string
	Counts
	Err error
}

// Result holds the results of an intake run.
type Result struct {
	Feeds  []FeedResult
	Totals Counts
}

// FailedFeeds returns the number of feeds that could not be read.
func (r *Result) FailedFeeds() int {
	n := 0
	for _, f := range r.Feeds {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline ingests every configured feed.
type Pipeline struct {
	feeds   []config.Feed
	db      *database.DB
	readers map[string]Reader
	log     zerolog.Logger
}

// NewPipeline creates an intake pipeline over the given feeds.
func NewPipeline(feeds []config.Feed, db *database.DB, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		feeds:   feeds,
		db:      db,
		readers: defaultReaders(db, newHTTPClient(0)),
		log:     logger.With().Str("component", "intake").Logger(),
	}
}

// SetReader overrides the reader used for a feed kind.
func (p *Pipeline) SetReader(kind string, r Reader) {
	p.readers[kind] = r
}

// Run fetches all feeds concurrently, then merges their rows sequentially in
// configured order. A feed that cannot be read is reported and skipped.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	resolver, err := identity.NewResolver(p.db)
	if err != nil {
		return nil, err
	}
	attacher, err := identity.NewAttacher(p.db)
	if err != nil {
		return nil, err
	}

	grids, errs := p.fetchAll(ctx)
	listAdded := database.FormatDate(p.db.Now())

	result := &Result{}
	for i, feed := range p.feeds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fr := FeedResult{Name: feed.Name}
		if errs[i] != nil {
			fr.Err = errs[i]
			p.log.Error().Stack().Err(errs[i]).Str("feed", feed.Name).Msg("Feed unavailable")
			result.Feeds = append(result.Feeds, fr)
			continue
		}

		rows, cols, err := extract(grids[i], feed)
		if err != nil {
			fr.Err = err
			p.log.Error().Stack().Err(err).Str("feed", feed.Name).Msg("Feed unusable")
			result.Feeds = append(result.Feeds, fr)
			continue
		}
		for _, missing := range cols.missing {
			p.log.Warn().Str("feed", feed.Name).Str("column", missing).Msg("Mapped column not in header")
		}

		for _, row := range rows {
			p.mergeRow(feed, cols, row, listAdded, resolver, attacher, &fr.Counts)
		}

		p.log.Info().
			Str("feed", feed.Name).
			Int("processed", fr.Processed).
			Int("new_customers", fr.NewCustomers).
			Int("updated_customers", fr.UpdatedCustomers).
			Int("new_sources", fr.NewSources).
			Int("skipped", fr.Skipped).
			Int("errors", fr.Errors).
			Msg("Feed ingested")

		result.Totals.add(fr.Counts)
		result.Feeds = append(result.Feeds, fr)
	}

	p.log.Info().
		Int("feeds", len(p.feeds)).
		Int("failed_feeds", result.FailedFeeds()).
		Int("processed", result.Totals.Processed).
		Int("new_customers", result.Totals.NewCustomers).
		Msg("Intake complete")
	return result, nil
}

func (p *Pipeline) fetchAll(ctx context.Context) ([][][]string, []error) {
	grids := make([][][]string, len(p.feeds))
	errs := make([]error, len(p.feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, feed := range p.feeds {
		i, feed := i, feed
		g.Go(func() error {
			grids[i], errs[i] = p.read(gctx, feed)
			return nil
		})
	}
	_ = g.Wait()
	return grids, errs
}

func (p *Pipeline) read(ctx context.Context, feed config.Feed) ([][]string, error) {
	r, ok := p.readers[feed.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported feed kind %q", feed.Kind)
	}
	return r.Read(ctx, feed)
}

func (p *Pipeline) mergeRow(feed config.Feed, cols columns, row sourceRow, listAdded string,
	resolver *identity.Resolver, attacher *identity.Attacher, counts *Counts) {
	logger := p.log.With().Str("feed", feed.Name).Int("row", row.num).Logger()

	c := identity.Candidate{
		Handle:   row.get(cols.handle),
		FullName: row.get(cols.fullName),
		Phone:    row.get(cols.phone),
		Email:    row.get(cols.email),
	}
	if c.Handle == "" && identity.NormalizePhone(c.Phone) == "" {
		logger.Warn().Msg("Row has neither handle nor phone, skipped")
		counts.Skipped++
		return
	}

	detail := row.get(cols.sourceDetail)
	if detail == "" {
		detail = feed.Name
	}
	rawEvent := row.get(cols.eventDate)
	eventDate := database.NormalizeDate(rawEvent)
	if rawEvent != "" && eventDate == "" {
		logger.Warn().Str("event_date", rawEvent).Msg("Unparseable event date, stored empty")
	}

	merged, err := resolver.Merge(c)
	if err != nil {
		logger.Error().Stack().Err(err).Msg("Merging customer failed")
		counts.Errors++
		return
	}
	// The customer write has landed; count it even if attaching fails.
	if merged.IsNew {
		counts.NewCustomers++
	} else {
		counts.UpdatedCustomers++
	}

	attached, err := attacher.Attach(merged.CustomerID, feed.SourceType, detail, listAdded, eventDate)
	if err != nil {
		logger.Error().Stack().Err(err).Str("customer_id", merged.CustomerID).Msg("Attaching lead source failed")
		counts.Errors++
		return
	}

	counts.Processed++
	if attached.IsNew {
		counts.NewSources++
	}
}

// columns holds the grid index of each mapped field, -1 when unmapped or
// absent from the header.
type columns struct {
	handle, fullName, phone, email, sourceDetail, eventDate int
	missing                                                 []string
}

type sourceRow struct {
	num   int
	cells []string
}

func (r sourceRow) get(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// extract resolves the feed's column mapping against its header row and
// returns the data rows.
func extract(grid [][]string, feed config.Feed) ([]sourceRow, columns, error) {
	if feed.HeaderRow > len(grid) {
		return nil, columns{}, fmt.Errorf("header row %d missing (%d rows)", feed.HeaderRow, len(grid))
	}
	header := grid[feed.HeaderRow-1]
	cols := resolveColumns(header, feed.Mapping)
	if cols.handle < 0 && cols.phone < 0 {
		return nil, cols, fmt.Errorf("header has neither handle nor phone column")
	}

	var rows []sourceRow
	for i := feed.DataStartRow - 1; i < len(grid); i++ {
		rows = append(rows, sourceRow{num: i + 1, cells: grid[i]})
	}
	return rows, cols, nil
}

func resolveColumns(header []string, m config.Mapping) columns {
	cols := columns{}
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
				return i
			}
		}
		cols.missing = append(cols.missing, name)
		return -1
	}
	cols.handle = find(m.Handle)
	cols.fullName = find(m.FullName)
	cols.phone = find(m.Phone)
	cols.email = find(m.Email)
	cols.sourceDetail = find(m.SourceDetail)
	cols.eventDate = find(m.EventDate)
	return cols
}
