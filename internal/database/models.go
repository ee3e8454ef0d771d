package database

// Customer is one resolved lead identity.
type Customer struct {
	ID          string
	LineName    string // informal handle
	FullName    string
	PhoneNumber string // normalized
	Email       string
	Status      string
	CreatedAt   string
	UpdatedAt   string
}

// LeadSource links a customer to the feed that produced it.
type LeadSource struct {
	ID            string
	CustomerID    string
	SourceType    string
	SourceDetail  string
	ListAddedDate string
	EventDate     string
	CreatedAt     string
	UpdatedAt     string
}

// CallLog is one outreach attempt.
type CallLog struct {
	ID             string
	CustomerID     string
	LeadSourceID   string
	Agent          string
	CalledAt       string
	Attempt        int
	Outcome        string
	Rank           string
	NextActionDate string
	Memo           string
	CreatedAt      string
	UpdatedAt      string
}

// Appointment is a scheduled meeting created from an outreach attempt.
type Appointment struct {
	ID               string
	CustomerID       string
	FromCallID       string
	BookedAt         string // appointment_created_datetime
	MeetingAt        string
	AttendanceStatus string
	DealStatus       string
	DealAmount       *float64
	CreatedAt        string
	UpdatedAt        string
}

// Metrics is the KPI metric set shared by both KPI tables.
type Metrics struct {
	CallCount        int     `json:"call_count"`
	ConnectedCount   int     `json:"connected_count"`
	ConnectionRate   float64 `json:"connection_rate"`
	AppointmentCount int     `json:"appointment_count"`
	AppointmentRate  float64 `json:"appointment_rate"`
	AttendanceCount  int     `json:"attendance_count"`
	AttendanceRate   float64 `json:"attendance_rate"`
	DealCount        int     `json:"deal_count"`
	DealRate         float64 `json:"deal_rate"`
}

// DailyKPI is one row of the date x agent x source table.
type DailyKPI struct {
	Date       string `json:"date"`
	Agent      string `json:"assigned_is"`
	SourceType string `json:"lead_source_type"`
	Metrics
	UpdatedAt string `json:"updated_at"`
}

// ListKPI is one row of the source type x source detail table.
type ListKPI struct {
	SourceType     string `json:"source_type"`
	SourceDetail   string `json:"source_detail"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	TotalCustomers int    `json:"total_customers"`
	Metrics
	UpdatedAt string `json:"updated_at"`
}

// LogEntry is one row of the logs table.
type LogEntry struct {
	ID           int64
	Timestamp    string
	FunctionName string
	Level        string
	Message      string
	Stacktrace   string
}

// RunReport is the stored summary of one pipeline run.
type RunReport struct {
	RunID          string
	StartedAt      string
	FinishedAt     string
	ReportMarkdown string
}

// Stats holds database statistics.
type Stats struct {
	Customers        int
	CustomersByState map[string]int
	LeadSources      int
	CallLogs         int
	Appointments     int
	TargetSheets     int
	DailyKPIRows     int
	ListKPIRows      int
	LastRunAt        string
}
