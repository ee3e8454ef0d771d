package database

import "github.com/oklog/ulid/v2"

// ID prefixes for canonical entities.
const (
	PrefixCustomer    = "CUST"
	PrefixLeadSource  = "LEAD"
	PrefixCall        = "CALL"
	PrefixAppointment = "APPT"
)

// NewID returns a prefixed, time-ordered identifier such as CUST_01J....
func NewID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}
