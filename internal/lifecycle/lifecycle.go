// Package lifecycle derives a customer's overall status from outreach outcomes.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
)

// Status is a customer's overall lifecycle status.
type Status string

const (
	Uncontacted Status = "Uncontacted"
	InProgress  Status = "In-Progress"
	Appointment Status = "Appointment"
	Closed      Status = "Closed"
)

// Outcome codes with lifecycle meaning.
const (
	OutcomeReconnectNeeded       = "reconnect-needed"
	OutcomeAnswered              = "answered"
	OutcomeAppointmentScheduling = "appointment-scheduling"
	OutcomeVoicemailLeft         = "voicemail-left"
	OutcomeDeclined              = "declined"
	OutcomeNoAnswer              = "no-answer"
	OutcomeBusy                  = "busy"
	OutcomeUnreachable           = "unreachable"
)

// Appointment resolution values.
const (
	AttendanceAttended = "attended"
	DealWon            = "deal"
)

// Effective returns the status with blank read as Uncontacted.
func Effective(status string) Status {
	if status == "" {
		return Uncontacted
	}
	return Status(status)
}

// NextStatus maps an outcome to the new status. changed is false for codes
// without lifecycle meaning. Closed is not terminal: a later qualifying
// outcome moves a closed customer again.
func NextStatus(outcome string, hasActiveAppointment bool) (next Status, changed bool) {
	switch outcome {
	case OutcomeAnswered, OutcomeAppointmentScheduling:
		if hasActiveAppointment {
			return Appointment, true
		}
		return InProgress, true
	case OutcomeReconnectNeeded, OutcomeVoicemailLeft, OutcomeNoAnswer, OutcomeBusy, OutcomeUnreachable:
		return InProgress, true
	case OutcomeDeclined:
		return Closed, true
	}
	return "", false
}

// IsActive reports whether an appointment's meeting is at or after now and
// its attendance or deal outcome is still unset.
func IsActive(a database.Appointment, now time.Time) bool {
	meeting, ok := database.ParseTime(a.MeetingAt)
	if !ok || meeting.Before(now) {
		return false
	}
	return a.AttendanceStatus == "" || a.DealStatus == ""
}

// HasActiveAppointment reports whether any appointment is active at now.
func HasActiveAppointment(appts []database.Appointment, now time.Time) bool {
	for _, a := range appts {
		if IsActive(a, now) {
			return true
		}
	}
	return false
}

// OutcomeTable answers whether outcome codes are known and count as connected.
type OutcomeTable struct {
	codes     []string
	connected map[string]bool
}

// NewOutcomeTable builds a table from configured outcomes.
func NewOutcomeTable(outcomes []config.Outcome) *OutcomeTable {
	t := &OutcomeTable{connected: make(map[string]bool, len(outcomes))}
	for _, o := range outcomes {
		if _, dup := t.connected[o.Code]; !dup {
			t.codes = append(t.codes, o.Code)
		}
		t.connected[o.Code] = o.Connected
	}
	return t
}

// Known reports whether code is a configured outcome.
func (t *OutcomeTable) Known(code string) bool {
	_, ok := t.connected[code]
	return ok
}

// IsConnected reports whether code counts as a live contact.
func (t *OutcomeTable) IsConnected(code string) bool {
	return t.connected[code]
}

// Codes lists configured outcome codes in configuration order.
func (t *OutcomeTable) Codes() []string {
	return append([]string(nil), t.codes...)
}

// Store is the storage the engine needs.
type Store interface {
	GetCustomer(customerID string) (*database.Customer, error)
	ListAppointmentsForCustomer(customerID string) ([]database.Appointment, error)
	UpdateCustomerStatus(customerID, status string) error
}

// Transition describes one applied outcome.
type Transition struct {
	From    Status
	To      Status
	Changed bool
}

// Engine applies outcomes to stored customers.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an engine; now defaults to time.Now.
func NewEngine(store Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

// Apply computes the transition for outcome against the customer's current
// appointments and persists the new status when it differs.
func (e *Engine) Apply(customerID, outcome string) (Transition, error) {
	cust, err := e.store.GetCustomer(customerID)
	if err != nil {
		return Transition{}, fmt.Errorf("loading customer %s: %w", customerID, err)
	}
	if cust == nil {
		return Transition{}, fmt.Errorf("customer %s not found", customerID)
	}
	from := Effective(cust.Status)

	appts, err := e.store.ListAppointmentsForCustomer(customerID)
	if err != nil {
		return Transition{}, fmt.Errorf("loading appointments of %s: %w", customerID, err)
	}

	next, ok := NextStatus(outcome, HasActiveAppointment(appts, e.now()))
	if !ok {
		return Transition{From: from, To: from}, nil
	}
	if next == Status(cust.Status) {
		return Transition{From: from, To: next}, nil
	}
	if err := e.store.UpdateCustomerStatus(customerID, string(next)); err != nil {
		return Transition{}, err
	}
	return Transition{From: from, To: next, Changed: true}, nil
}
