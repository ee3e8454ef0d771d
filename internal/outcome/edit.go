package outcome

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/database"
)

// ErrIgnored is returned for edits that do not describe a recordable attempt.
var ErrIgnored = errors.New("edit ignored")

// EditEvent reports that a cell of a sheet table was edited.
type EditEvent struct {
	Sheet      string
	Row        int
	Column     string
	PriorValue string
}

// EditHandler turns target sheet edits into recorded outreach attempts.
type EditHandler struct {
	db       *database.DB
	recorder *Recorder
	log      zerolog.Logger
}

// NewEditHandler creates a handler recording through recorder.
func NewEditHandler(db *database.DB, recorder *Recorder, logger zerolog.Logger) *EditHandler {
	return &EditHandler{
		db:       db,
		recorder: recorder,
		log:      logger.With().Str("component", "edits").Logger(),
	}
}

// Handle records the edited row and marks it registered. Edits outside a
// target sheet's unregistered input cells return an error wrapping ErrIgnored.
// The sheet's table lock is held from the read through the registered mark.
func (h *EditHandler) Handle(ctx context.Context, ev EditEvent) (string, error) {
	agent, ok := database.AgentFromSheet(ev.Sheet)
	if !ok {
		return "", ignored("%s is not a target sheet", ev.Sheet)
	}
	if ev.Row <= database.HeaderRowNum {
		return "", ignored("row %d is the header", ev.Row)
	}
	if !isInputColumn(ev.Column) {
		return "", ignored("column %q is not an input column", ev.Column)
	}

	unlock := h.db.LockTable(ev.Sheet)
	defer unlock()

	sheet, err := h.db.GetTable(ev.Sheet)
	if err != nil {
		return "", err
	}
	if sheet == nil {
		return "", fmt.Errorf("sheet %s not found", ev.Sheet)
	}
	row, ok := sheet.Row(ev.Row)
	if !ok {
		return "", fmt.Errorf("row %d of %s not found", ev.Row, ev.Sheet)
	}

	if sheet.Value(row, database.ColRegistered) == database.RegisteredMark {
		return "", ignored("row %d already registered", ev.Row)
	}
	customerID := sheet.Value(row, database.ColCustomerID)
	if customerID == "" {
		h.log.Warn().Str("sheet", ev.Sheet).Int("row", ev.Row).Msg("Edited row has no customer id")
		return "", ignored("row %d has no customer id", ev.Row)
	}
	status := strings.TrimSpace(sheet.Value(row, database.ColStatus))
	if status == "" {
		return "", ignored("row %d has no status", ev.Row)
	}

	h.log.Debug().Str("sheet", ev.Sheet).Int("row", ev.Row).Str("column", ev.Column).
		Str("prior", ev.PriorValue).Msg("Recording edited row")

	callID, err := h.recorder.Record(ctx, Input{
		Agent:           agent,
		CustomerID:      customerID,
		Outcome:         status,
		Rank:            strings.TrimSpace(sheet.Value(row, database.ColNoteRank)),
		NextActionDate:  strings.TrimSpace(sheet.Value(row, database.ColNextActionDate)),
		Note:            sheet.Value(row, database.ColMemo),
		AppointmentTime: strings.TrimSpace(sheet.Value(row, database.ColAppointmentTime)),
	})
	if err != nil {
		return "", err
	}

	if err := h.markRegistered(ev.Sheet, ev.Row, customerID); err != nil {
		h.log.Error().Stack().Err(err).Str("customer_id", customerID).Str("call_id", callID).Msg("Marking row registered failed")
		return callID, err
	}
	return callID, nil
}

// markRegistered flags rowNum once it is confirmed to still hold customerID.
// The caller holds the table lock.
func (h *EditHandler) markRegistered(name string, rowNum int, customerID string) error {
	sheet, err := h.db.GetTable(name)
	if err != nil {
		return err
	}
	if sheet == nil {
		return fmt.Errorf("sheet %s not found", name)
	}
	row, ok := sheet.Row(rowNum)
	if !ok {
		return fmt.Errorf("row %d of %s not found", rowNum, name)
	}
	if got := sheet.Value(row, database.ColCustomerID); got != customerID {
		return fmt.Errorf("row %d of %s now holds %s, not %s", rowNum, name, got, customerID)
	}
	col := sheet.Col(database.ColRegistered)
	if col < 0 {
		return fmt.Errorf("%s has no %s column", name, database.ColRegistered)
	}
	return h.db.SetCell(name, rowNum, col+1, database.RegisteredMark)
}

func isInputColumn(name string) bool {
	for _, c := range database.TargetInputColumns {
		if strings.EqualFold(c, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func ignored(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIgnored, fmt.Sprintf(format, args...))
}
