// Package outcome records outreach attempts and drives the customer
// lifecycle from them.
package outcome

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/lifecycle"
)

// Input is one outreach attempt as entered by an agent.
type Input struct {
	Agent           string
	CustomerID      string
	Outcome         string
	Rank            string
	NextActionDate  string
	Note            string
	AppointmentTime string
}

// Recorder writes outreach records, creates appointments and applies the
// resulting lifecycle transition.
type Recorder struct {
	db     *database.DB
	engine *lifecycle.Engine
	log    zerolog.Logger
}

// NewRecorder creates a recorder using the store's clock.
func NewRecorder(db *database.DB, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:     db,
		engine: lifecycle.NewEngine(db, db.Now),
		log:    logger.With().Str("component", "recorder").Logger(),
	}
}

// Record stores one outreach attempt and returns the new call ID. Attempts
// for the same customer are serialized.
func (r *Recorder) Record(ctx context.Context, in Input) (string, error) {
	logger := r.log.With().Str("customer_id", in.CustomerID).Str("agent", in.Agent).Logger()

	callID, tr, err := r.record(ctx, in)
	if err != nil {
		logger.Error().Stack().Err(err).Str("outcome", in.Outcome).Msg("Recording outreach failed")
		return "", err
	}

	logger.Info().
		Str("call_id", callID).
		Str("outcome", in.Outcome).
		Str("status", string(tr.To)).
		Bool("status_changed", tr.Changed).
		Msg("Outreach recorded")
	return callID, nil
}

func (r *Recorder) record(ctx context.Context, in Input) (string, lifecycle.Transition, error) {
	if err := ctx.Err(); err != nil {
		return "", lifecycle.Transition{}, err
	}
	if in.CustomerID == "" {
		return "", lifecycle.Transition{}, fmt.Errorf("customer id is required")
	}
	if in.Outcome == "" {
		return "", lifecycle.Transition{}, fmt.Errorf("outcome is required")
	}

	unlock := r.db.LockCustomer(in.CustomerID)
	defer unlock()

	cust, err := r.db.GetCustomer(in.CustomerID)
	if err != nil {
		return "", lifecycle.Transition{}, err
	}
	if cust == nil {
		return "", lifecycle.Transition{}, fmt.Errorf("customer %s not found", in.CustomerID)
	}

	previous, err := r.db.CountCallLogs(in.CustomerID)
	if err != nil {
		return "", lifecycle.Transition{}, fmt.Errorf("counting calls: %w", err)
	}

	var leadSourceID string
	primary, err := r.db.GetPrimaryLeadSource(in.CustomerID)
	if err != nil {
		return "", lifecycle.Transition{}, fmt.Errorf("loading primary lead source: %w", err)
	}
	if primary != nil {
		leadSourceID = primary.ID
	}

	nextAction := in.NextActionDate
	if d := database.NormalizeDate(nextAction); d != "" {
		nextAction = d
	}

	call := &database.CallLog{
		CustomerID:     in.CustomerID,
		LeadSourceID:   leadSourceID,
		Agent:          in.Agent,
		Attempt:        previous + 1,
		Outcome:        in.Outcome,
		Rank:           in.Rank,
		NextActionDate: nextAction,
		Memo:           in.Note,
	}
	if err := r.db.InsertCallLog(call); err != nil {
		return "", lifecycle.Transition{}, err
	}

	if in.AppointmentTime != "" {
		meeting, ok := database.ParseTime(in.AppointmentTime)
		if ok {
			appt := &database.Appointment{
				CustomerID: in.CustomerID,
				FromCallID: call.ID,
				MeetingAt:  database.FormatDateTime(meeting),
			}
			if err := r.db.InsertAppointment(appt); err != nil {
				return call.ID, lifecycle.Transition{}, err
			}
		} else {
			r.log.Warn().Str("customer_id", in.CustomerID).Str("appointment_time", in.AppointmentTime).
				Msg("Unparseable appointment time, no appointment created")
		}
	}

	tr, err := r.engine.Apply(in.CustomerID, in.Outcome)
	if err != nil {
		return call.ID, lifecycle.Transition{}, err
	}
	return call.ID, tr, nil
}
