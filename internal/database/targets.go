package database

import "strings"

// TargetSheetPrefix names per-agent daily target tables: TODAY_CALL_<agent>.
const TargetSheetPrefix = "TODAY_CALL_"

// RegisteredMark is written to the registered column once an entry is recorded.
const RegisteredMark = "✓"

// Daily target table columns.
const (
	ColCustomerID      = "customer_id"
	ColLineName        = "line_name"
	ColFullName        = "full_name"
	ColPhoneNumber     = "phone_number"
	ColSourceType      = "source_type"
	ColLastCallDate    = "last_call_date"
	ColCallCount       = "call_count"
	ColStatus          = "status"
	ColNoteRank        = "note_rank"
	ColNextActionDate  = "next_action_date"
	ColMemo            = "memo"
	ColAppointmentTime = "appointment_datetime"
	ColRegistered      = "registered"
)

// TargetHeader is the header schema of every TODAY_CALL_<agent> table.
var TargetHeader = []string{
	ColCustomerID, ColLineName, ColFullName, ColPhoneNumber, ColSourceType,
	ColLastCallDate, ColCallCount, ColStatus, ColNoteRank, ColNextActionDate,
	ColMemo, ColAppointmentTime, ColRegistered,
}

// TargetInputColumns are the columns an agent edits.
var TargetInputColumns = []string{
	ColStatus, ColNoteRank, ColNextActionDate, ColMemo, ColAppointmentTime,
}

// TargetSheetName returns the target table name for an agent.
func TargetSheetName(agent string) string {
	return TargetSheetPrefix + agent
}

// AgentFromSheet extracts the agent from a target table name.
func AgentFromSheet(name string) (string, bool) {
	if !strings.HasPrefix(name, TargetSheetPrefix) {
		return "", false
	}
	agent := strings.TrimPrefix(name, TargetSheetPrefix)
	return agent, agent != ""
}
