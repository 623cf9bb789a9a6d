package main

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
)

// CanManage reports whether the role may run manager-level commands
// (corrections, anomaly resolution, report generation).
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleManager
}

type EntryStatus string

const (
	EntryActive    EntryStatus = "active"
	EntryCompleted EntryStatus = "completed"
	EntryAnomaly   EntryStatus = "anomaly"
)

type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleMissed    ScheduleStatus = "missed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

type AnomalyType string

const (
	AnomalyMissedClockIn    AnomalyType = "missed_clock_in"
	AnomalyMissedClockOut   AnomalyType = "missed_clock_out"
	AnomalyOver24h          AnomalyType = "over_24h"
	AnomalyMultipleActive   AnomalyType = "multiple_active"
	AnomalyScheduleMismatch AnomalyType = "schedule_mismatch"
)

// EntryLinked reports whether anomalies of this type reference a time entry
// (as opposed to a schedule).
func (t AnomalyType) EntryLinked() bool {
	switch t {
	case AnomalyMissedClockOut, AnomalyOver24h, AnomalyMultipleActive:
		return true
	}
	return false
}

func (t AnomalyType) Label() string {
	switch t {
	case AnomalyMissedClockIn:
		return "Missed clock-in"
	case AnomalyMissedClockOut:
		return "Missed clock-out"
	case AnomalyOver24h:
		return "Active over 24h"
	case AnomalyMultipleActive:
		return "Multiple active entries"
	case AnomalyScheduleMismatch:
		return "Schedule mismatch"
	}
	return string(t)
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type AbsenceType string

const (
	AbsenceVacation AbsenceType = "vacation"
	AbsenceSick     AbsenceType = "sick"
	AbsenceTraining AbsenceType = "training"
	AbsenceOther    AbsenceType = "other"
)

type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

type User struct {
	ID             int64
	FullName       string
	Email          string
	Role           Role
	EmployeeNumber string
	SlackUserID    string
	TelegramChatID int64 // 0 when the agent has no Telegram registration
	Active         bool
	CreatedAt      time.Time
}

type Site struct {
	ID        int64
	Name      string
	Code      string // short token agents pass to /clockin, printed under the QR code
	QRToken   string
	Address   string
	Active    bool
	CreatedAt time.Time
}

// TimeEntry is one clock-in/clock-out cycle for an agent at a site.
type TimeEntry struct {
	ID                int64
	UserID            int64
	SiteID            int64
	ClockedInAt       time.Time
	ClockedOutAt      *time.Time
	DurationMinutes   *int64 // nil while the entry is active
	Status            EntryStatus
	IPAddressIn       string
	IPAddressOut      string
	UserAgentIn       string
	UserAgentOut      string
	Notes             string
	ManuallyCorrected bool
	CorrectedByID     *int64
	CorrectedAt       *time.Time
	CreatedAt         time.Time
}

// Schedule is a planned shift. StartTime and EndTime are zero-padded "HH:MM"
// wall-clock strings; zero-padding keeps lexicographic comparison correct.
type Schedule struct {
	ID                int64
	UserID            int64
	SiteID            int64
	ScheduledDate     time.Time // date component only
	StartTime         string
	EndTime           string
	Status            ScheduleStatus
	Notes             string
	CreatedByID       int64
	ReplacedByID      *int64
	ReplacementReason string
	CreatedAt         time.Time
}

type AnomalyLog struct {
	ID              int64
	Type            AnomalyType
	Severity        Severity
	UserID          *int64
	TimeEntryID     *int64
	ScheduleID      *int64
	Description     string
	Resolved        bool
	ResolvedByID    *int64
	ResolvedAt      *time.Time
	ResolutionNotes string
	CreatedAt       time.Time
}

type Absence struct {
	ID          int64
	UserID      int64
	Type        AbsenceType
	Status      AbsenceStatus
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	CreatedByID int64
	CreatedAt   time.Time
}

// ReportFilters are the optional equality predicates a report was generated
// with. Stored as JSON in the reports table.
type ReportFilters struct {
	UserID   *int64 `json:"user_id,omitempty"`
	SiteID   *int64 `json:"site_id,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// ReportMetrics are the aggregates computed on demand from the time-entry,
// anomaly, absence, and schedule stores. Which fields are populated depends
// on the report type.
type ReportMetrics struct {
	TotalHours   float64
	TotalEntries int
	TotalAgents  int
	TotalSites   int

	TotalAnomalies      int
	ResolvedAnomalies   int
	UnresolvedAnomalies int

	TotalAbsences int
	AbsenceRate   float64

	TotalSchedules int
	CompletedCount int
	MissedCount    int
}

type Report struct {
	ID            int64
	Title         string
	ReportType    string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	GeneratedAt   time.Time
	GeneratedByID *int64
	Description   string
	Filters       ReportFilters
	Metrics       ReportMetrics
	CreatedAt     time.Time
}

var reportTypes = []string{"time_tracking", "monthly", "payroll_export", "anomalies", "hr", "scheduling"}

func ValidReportType(t string) bool {
	for _, rt := range reportTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// MonthRange returns the first instant of the month and the first instant of
// the next month, so queries can use half-open [from, to) comparisons.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// DayRange returns midnight of t's day and midnight of the following day.
func DayRange(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}

// durationMinutesBetween computes a completed entry's duration in whole
// minutes, rounded to the nearest minute.
func durationMinutesBetween(in, out time.Time) int64 {
	d := out.Sub(in)
	return int64((d + 30*time.Second) / time.Minute)
}

// appendNote joins an existing notes blob with an additional line, skipping
// empty parts.
func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	if note == "" {
		return existing
	}
	return existing + ". " + note
}

// normalizeClock parses "H:MM" or "HH:MM" and returns the zero-padded form.
func normalizeClock(s string) (string, error) {
	hour, min, err := parseClock(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, min), nil
}

func parseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
