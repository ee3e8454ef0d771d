// Package kpi rolls outreach and appointment outcomes up into the daily and
// by-list KPI tables.
package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/lifecycle"
	"github.com/TobiSchelling/leadflow/internal/targeting"
)

// AllSources is the source type of the daily rows aggregating every source.
const AllSources = "ALL"

// Table names used for locking.
const (
	TableDaily  = "kpi_daily"
	TableByList = "kpi_by_list"
)

// Aggregator computes and stores both KPI tables.
type Aggregator struct {
	db          *database.DB
	outcomes    *lifecycle.OutcomeTable
	sourceTypes []string
	roster      []string
	dailyDays   int
	listMonths  int
	log         zerolog.Logger
}

// NewAggregator creates an aggregator from configuration.
func NewAggregator(db *database.DB, cfg *config.Config, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		db:          db,
		outcomes:    lifecycle.NewOutcomeTable(cfg.Outcomes),
		sourceTypes: cfg.SourceTypes,
		roster:      cfg.Agents,
		dailyDays:   cfg.KPI.DailyWindowDays,
		listMonths:  cfg.KPI.ByListPeriodMonths,
		log:         logger.With().Str("component", "kpi").Logger(),
	}
}

// Daily recomputes kpi_daily for the trailing window ending on asOf and
// replaces the table.
func (a *Aggregator) Daily(ctx context.Context, asOf time.Time) ([]database.DailyKPI, error) {
	rows, err := a.ComputeDaily(ctx, asOf)
	if err != nil {
		return nil, err
	}
	unlock := a.db.LockTable(TableDaily)
	defer unlock()
	if err := a.db.ReplaceDailyKPI(rows); err != nil {
		return nil, fmt.Errorf("replacing %s: %w", TableDaily, err)
	}
	a.log.Info().Int("rows", len(rows)).Int("days", a.dailyDays).Msg("Daily KPI updated")
	return rows, nil
}

// ByList recomputes kpi_by_list for the period ending on asOf and replaces
// the table.
func (a *Aggregator) ByList(ctx context.Context, asOf time.Time) ([]database.ListKPI, error) {
	rows, err := a.ComputeByList(ctx, asOf)
	if err != nil {
		return nil, err
	}
	unlock := a.db.LockTable(TableByList)
	defer unlock()
	if err := a.db.ReplaceListKPI(rows); err != nil {
		return nil, fmt.Errorf("replacing %s: %w", TableByList, err)
	}
	a.log.Info().Int("rows", len(rows)).Int("months", a.listMonths).Msg("List KPI updated")
	return rows, nil
}

// ComputeDaily builds kpi_daily rows without writing them. A row is emitted
// for each date, agent and source type (plus ALL) with any activity.
func (a *Aggregator) ComputeDaily(ctx context.Context, asOf time.Time) ([]database.DailyKPI, error) {
	data, err := a.load()
	if err != nil {
		return nil, err
	}

	var history []string
	for _, c := range data.calls {
		history = append(history, c.call.Agent)
	}
	agents := targeting.ResolveAgents(a.roster, history)
	sourceTypes := append(append([]string(nil), a.sourceTypes...), AllSources)
	window := database.NewDayWindow(asOf.AddDate(0, 0, -(a.dailyDays-1)), asOf)
	updatedAt := database.FormatDateTime(a.db.Now())

	type cellKey struct{ day, agent string }
	byCell := make(map[cellKey][]call)
	for _, c := range data.calls {
		if c.ok && window.Contains(c.at) {
			k := cellKey{database.FormatDate(c.at), c.call.Agent}
			byCell[k] = append(byCell[k], c)
		}
	}

	var rows []database.DailyKPI
	for _, day := range window.Days() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := database.FormatDate(day)
		dayWindow := database.NewDayWindow(day, day)
		for _, agent := range agents {
			cellCalls := byCell[cellKey{date, agent}]
			for _, st := range sourceTypes {
				calls := filterCalls(cellCalls, func(c call) bool {
					return st == AllSources || c.sourceType == st
				})
				appts := data.appointmentsFor(customersOf(calls), dayWindow)
				if len(calls) == 0 && len(appts) == 0 {
					continue
				}
				rows = append(rows, database.DailyKPI{
					Date:       date,
					Agent:      agent,
					SourceType: st,
					Metrics:    a.metrics(calls, appts),
					UpdatedAt:  updatedAt,
				})
			}
		}
	}
	return rows, nil
}

// ComputeByList builds kpi_by_list rows without writing them: one row per
// (source type, source detail) group in first-seen order, even when idle.
func (a *Aggregator) ComputeByList(ctx context.Context, asOf time.Time) ([]database.ListKPI, error) {
	data, err := a.load()
	if err != nil {
		return nil, err
	}

	window := database.NewDayWindow(asOf.AddDate(0, -a.listMonths, 0), asOf)
	periodStart := database.FormatDate(window.Start)
	periodEnd := database.FormatDate(window.End)
	updatedAt := database.FormatDateTime(a.db.Now())

	inWindow := filterCalls(data.calls, func(c call) bool { return c.ok && window.Contains(c.at) })

	rows := make([]database.ListKPI, 0, len(data.groups))
	for _, g := range data.groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		calls := filterCalls(inWindow, func(c call) bool { return g.customers[c.call.CustomerID] })
		appts := data.appointmentsFor(customersOf(calls), window)
		rows = append(rows, database.ListKPI{
			SourceType:     g.sourceType,
			SourceDetail:   g.sourceDetail,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			TotalCustomers: len(g.customers),
			Metrics:        a.metrics(calls, appts),
			UpdatedAt:      updatedAt,
		})
	}
	return rows, nil
}

func (a *Aggregator) metrics(calls []call, appts []database.Appointment) database.Metrics {
	m := database.Metrics{
		CallCount:        len(calls),
		AppointmentCount: len(appts),
	}
	for _, c := range calls {
		if a.outcomes.IsConnected(c.call.Outcome) {
			m.ConnectedCount++
		}
	}
	for _, ap := range appts {
		if ap.AttendanceStatus == lifecycle.AttendanceAttended {
			m.AttendanceCount++
		}
		if ap.DealStatus == lifecycle.DealWon {
			m.DealCount++
		}
	}
	m.ConnectionRate = Rate(m.ConnectedCount, m.CallCount)
	m.AppointmentRate = Rate(m.AppointmentCount, m.CallCount)
	m.AttendanceRate = Rate(m.AttendanceCount, m.AppointmentCount)
	m.DealRate = Rate(m.DealCount, m.CallCount)
	return m
}

// Rate divides n by d, returning 0 when d is 0.
func Rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
