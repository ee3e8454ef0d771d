package kpi

import (
	"fmt"
	"time"

	"github.com/TobiSchelling/leadflow/internal/database"
)

// call is an outreach record with its parsed time and source type.
type call struct {
	call       database.CallLog
	at         time.Time
	ok         bool
	sourceType string
}

type appointment struct {
	appt database.Appointment
	at   time.Time
}

type group struct {
	sourceType   string
	sourceDetail string
	customers    map[string]bool
}

// dataset is the store state both jobs aggregate over.
type dataset struct {
	calls        []call
	appointments map[string][]appointment // by customer
	groups       []*group
}

func (a *Aggregator) load() (*dataset, error) {
	sources, err := a.db.ListLeadSources()
	if err != nil {
		return nil, fmt.Errorf("loading lead sources: %w", err)
	}
	calls, err := a.db.ListCallLogs()
	if err != nil {
		return nil, fmt.Errorf("loading call logs: %w", err)
	}
	appts, err := a.db.ListAppointments()
	if err != nil {
		return nil, fmt.Errorf("loading appointments: %w", err)
	}

	typeByID := make(map[string]string, len(sources))
	groupIdx := make(map[[2]string]*group)
	d := &dataset{appointments: make(map[string][]appointment)}

	for _, ls := range sources {
		typeByID[ls.ID] = ls.SourceType
		k := [2]string{ls.SourceType, ls.SourceDetail}
		g, ok := groupIdx[k]
		if !ok {
			g = &group{sourceType: ls.SourceType, sourceDetail: ls.SourceDetail, customers: make(map[string]bool)}
			groupIdx[k] = g
			d.groups = append(d.groups, g)
		}
		g.customers[ls.CustomerID] = true
	}

	// A call without a known lead source has no type and only counts in ALL.
	for _, c := range calls {
		at, ok := database.ParseTime(c.CalledAt)
		d.calls = append(d.calls, call{call: c, at: at, ok: ok, sourceType: typeByID[c.LeadSourceID]})
	}

	for _, ap := range appts {
		at, ok := database.ParseTime(ap.BookedAt)
		if !ok {
			continue
		}
		d.appointments[ap.CustomerID] = append(d.appointments[ap.CustomerID], appointment{appt: ap, at: at})
	}
	return d, nil
}

// appointmentsFor returns the appointments of customers created within w.
func (d *dataset) appointmentsFor(customers []string, w database.DayWindow) []database.Appointment {
	var out []database.Appointment
	for _, id := range customers {
		for _, ap := range d.appointments[id] {
			if w.Contains(ap.at) {
				out = append(out, ap.appt)
			}
		}
	}
	return out
}

func filterCalls(calls []call, keep func(call) bool) []call {
	var out []call
	for _, c := range calls {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// customersOf returns the distinct customers of calls in first-seen order.
func customersOf(calls []call) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range calls {
		id := c.call.CustomerID
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
