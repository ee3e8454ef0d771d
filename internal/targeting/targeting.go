// Package targeting selects each agent's daily outreach queue and writes it
// to the agent's TODAY_CALL sheet.
package targeting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/lifecycle"
)

// Entry is one row of an agent's daily target sheet.
type Entry struct {
	CustomerID     string
	LineName       string
	FullName       string
	PhoneNumber    string
	SourceType     string
	LastCallDate   string
	CallCount      int
	Status         string // latest outcome, pre-filled
	Rank           string
	NextActionDate string
}

// Row renders the entry in database.TargetHeader order.
func (e Entry) Row() []string {
	return []string{
		e.CustomerID, e.LineName, e.FullName, e.PhoneNumber, e.SourceType,
		e.LastCallDate, strconv.Itoa(e.CallCount), e.Status, e.Rank, e.NextActionDate,
		"", "", "",
	}
}

// Breakdown explains a selection: why customers were excluded and how
// statuses are distributed. Each excluded customer counts under the first
// rule it fails.
type Breakdown struct {
	Total              int
	Eligible           int
	AlreadyCalledToday int
	WrongStatus        int
	FutureNextAction   int
	ByStatus           map[string]int
}

// SheetResult reports one generated target sheet.
type SheetResult struct {
	Agent     string
	Sheet     string
	Entries   int
	Breakdown Breakdown
}

// Selector picks eligible customers per agent.
type Selector struct {
	db       *database.DB
	statuses map[lifecycle.Status]bool
	log      zerolog.Logger
}

// NewSelector creates a selector targeting customers whose status is one of
// statuses.
func NewSelector(db *database.DB, statuses []string, logger zerolog.Logger) *Selector {
	set := make(map[lifecycle.Status]bool, len(statuses))
	for _, st := range statuses {
		set[lifecycle.Status(st)] = true
	}
	return &Selector{
		db:       db,
		statuses: set,
		log:      logger.With().Str("component", "targeting").Logger(),
	}
}

// Agents resolves the agents to generate sheets for from the roster and the
// agents present in outreach history.
func (s *Selector) Agents(roster []string) ([]string, error) {
	history, err := s.db.ListCallAgents()
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return ResolveAgents(roster, history), nil
}

// SelectTargets returns the eligible entries for agent on asOf, in customer
// listing order.
func (s *Selector) SelectTargets(ctx context.Context, agent string, asOf time.Time) ([]Entry, Breakdown, error) {
	snap, err := s.load()
	if err != nil {
		return nil, Breakdown{}, err
	}
	entries, b := s.selectFrom(snap, agent, asOf)
	return entries, b, ctx.Err()
}

// Generate rebuilds each agent's target sheet as a full replacement. Edits
// not yet recorded are discarded.
func (s *Selector) Generate(ctx context.Context, agents []string, asOf time.Time) ([]SheetResult, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	results := make([]SheetResult, 0, len(agents))
	for _, agent := range agents {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		entries, b := s.selectFrom(snap, agent, asOf)

		name := database.TargetSheetName(agent)
		if err := s.write(name, entries); err != nil {
			return results, fmt.Errorf("writing %s: %w", name, err)
		}
		s.log.Info().
			Str("agent", agent).
			Str("sheet", name).
			Int("entries", len(entries)).
			Int("called_today", b.AlreadyCalledToday).
			Int("wrong_status", b.WrongStatus).
			Int("future_next_action", b.FutureNextAction).
			Msg("Target sheet generated")
		results = append(results, SheetResult{Agent: agent, Sheet: name, Entries: len(entries), Breakdown: b})
	}
	return results, nil
}

func (s *Selector) write(name string, entries []Entry) error {
	if err := s.db.EnsureTable(name, database.TargetHeader); err != nil {
		return err
	}
	unlock := s.db.LockTable(name)
	defer unlock()

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = e.Row()
	}
	return s.db.ReplaceRows(name, rows)
}

// snapshot is the store state a selection runs against.
type snapshot struct {
	customers []database.Customer
	calls     map[string][]database.CallLog // by customer, insertion order
	primary   map[string]string             // customer -> primary source type
}

func (s *Selector) load() (*snapshot, error) {
	customers, err := s.db.ListCustomers()
	if err != nil {
		return nil, fmt.Errorf("loading customers: %w", err)
	}
	calls, err := s.db.ListCallLogs()
	if err != nil {
		return nil, fmt.Errorf("loading call logs: %w", err)
	}
	sources, err := s.db.ListLeadSources()
	if err != nil {
		return nil, fmt.Errorf("loading lead sources: %w", err)
	}

	snap := &snapshot{
		customers: customers,
		calls:     make(map[string][]database.CallLog),
		primary:   make(map[string]string),
	}
	for _, c := range calls {
		snap.calls[c.CustomerID] = append(snap.calls[c.CustomerID], c)
	}
	for _, ls := range sources {
		if _, ok := snap.primary[ls.CustomerID]; !ok {
			snap.primary[ls.CustomerID] = ls.SourceType
		}
	}
	return snap, nil
}

func (s *Selector) selectFrom(snap *snapshot, agent string, asOf time.Time) ([]Entry, Breakdown) {
	today := database.FormatDate(asOf)
	b := Breakdown{Total: len(snap.customers), ByStatus: make(map[string]int)}

	var entries []Entry
	for _, cust := range snap.customers {
		status := lifecycle.Effective(cust.Status)
		b.ByStatus[string(status)]++
		calls := snap.calls[cust.ID]

		if calledBy(calls, agent, today) {
			b.AlreadyCalledToday++
			continue
		}
		if !s.statuses[status] {
			b.WrongStatus++
			continue
		}
		latest := LatestCall(calls)
		if latest != nil && nextActionAfter(latest.NextActionDate, asOf) {
			b.FutureNextAction++
			continue
		}

		e := Entry{
			CustomerID:  cust.ID,
			LineName:    cust.LineName,
			FullName:    cust.FullName,
			PhoneNumber: cust.PhoneNumber,
			SourceType:  snap.primary[cust.ID],
			CallCount:   len(calls),
		}
		if latest != nil {
			if t, ok := database.ParseTime(latest.CalledAt); ok {
				e.LastCallDate = database.FormatDate(t)
			}
			e.Status = latest.Outcome
			e.Rank = latest.Rank
			e.NextActionDate = latest.NextActionDate
		}
		entries = append(entries, e)
	}
	b.Eligible = len(entries)
	return entries, b
}

// LatestCall returns the most recent outreach record by call timestamp.
// Records are scanned in insertion order and a later record wins on equal
// or missing timestamps.
func LatestCall(calls []database.CallLog) *database.CallLog {
	var latest *database.CallLog
	var latestAt time.Time
	var latestOK bool
	for i := range calls {
		at, ok := database.ParseTime(calls[i].CalledAt)
		if latest == nil || !ok || !latestOK || !at.Before(latestAt) {
			latest, latestAt, latestOK = &calls[i], at, ok
		}
	}
	return latest
}

func calledBy(calls []database.CallLog, agent, day string) bool {
	for _, c := range calls {
		if c.Agent != agent {
			continue
		}
		if t, ok := database.ParseTime(c.CalledAt); ok && database.FormatDate(t) == day {
			return true
		}
	}
	return false
}

// nextActionAfter reports whether a next-action date falls on a later day
// than asOf. Empty or unparseable dates count as none.
func nextActionAfter(nextAction string, asOf time.Time) bool {
	t, ok := database.ParseTime(nextAction)
	if !ok {
		return false
	}
	return database.StartOfDay(t).After(database.StartOfDay(asOf))
}
