package intake

import (
	"context"
)

// FeedCheck reports whether a feed can be read and mapped.
type FeedCheck struct {
	Name           string
	Kind           string
	Location       string
	Reachable      bool
	DataRows       int
	MissingColumns []string
	Err            error
}

// OK reports whether the feed is reachable with a usable header.
func (c FeedCheck) OK() bool {
	return c.Reachable && c.Err == nil
}

// Validate reads every feed and checks its header against the mapping
// without writing anything.
func (p *Pipeline) Validate(ctx context.Context) []FeedCheck {
	grids, errs := p.fetchAll(ctx)

	checks := make([]FeedCheck, 0, len(p.feeds))
	for i, feed := range p.feeds {
		c := FeedCheck{Name: feed.Name, Kind: feed.Kind, Location: feed.Location}
		if errs[i] != nil {
			c.Err = errs[i]
			checks = append(checks, c)
			continue
		}
		c.Reachable = true
		rows, cols, err := extract(grids[i], feed)
		c.Err = err
		c.DataRows = len(rows)
		c.MissingColumns = cols.missing
		checks = append(checks, c)

		event := p.log.Info()
		if !c.OK() {
			event = p.log.Warn().AnErr("error", err)
		}
		event.Str("feed", feed.Name).Int("rows", c.DataRows).Strs("missing_columns", c.MissingColumns).Msg("Feed checked")
	}
	return checks
}
