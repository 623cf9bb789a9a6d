package main

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

func insertCompletedEntry(t *testing.T, db *sql.DB, userID, siteID int64, in time.Time, minutes int64) {
	t.Helper()
	out := in.Add(time.Duration(minutes) * time.Minute)
	_, err := db.Exec(
		`INSERT INTO time_entries (user_id, site_id, clocked_in_at, clocked_out_at, duration_minutes, status)
		 VALUES (?, ?, ?, ?, ?, 'completed')`,
		userID, siteID, in, out, minutes,
	)
	if err != nil {
		t.Fatalf("inserting completed entry failed: %v", err)
	}
}

func TestTimeTrackingMetricsCountOpenEntriesWithoutSummingThem(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	bob := mustInsertUser(t, db, "Bob", "bob@example.com", RoleAgent)
	siteA := mustInsertSite(t, db, "Warehouse North", "WN1")
	siteB := mustInsertSite(t, db, "Depot South", "DS1")

	from, to := MonthRange(2026, time.March, time.Local)
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)

	insertCompletedEntry(t, db, alice, siteA, day, 300)            // 5h
	insertCompletedEntry(t, db, bob, siteB, day.Add(24*time.Hour), 180) // 3h
	insertEntryAt(t, db, alice, siteA, day.Add(48*time.Hour), EntryActive)
	insertCompletedEntry(t, db, alice, siteA, from.AddDate(0, -1, 0).Add(8*time.Hour), 600) // previous month

	m, err := ComputeReportMetrics(db, "time_tracking", from, to, ReportFilters{})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	// The still-active entry has no duration yet, so it is counted but
	// contributes no hours.
	if m.TotalHours != 8.0 {
		t.Fatalf("TotalHours = %v, want 8.0", m.TotalHours)
	}
	if m.TotalEntries != 3 {
		t.Fatalf("TotalEntries = %d, want 3", m.TotalEntries)
	}
	if m.TotalAgents != 2 || m.TotalSites != 2 {
		t.Fatalf("distinct counts = %d agents, %d sites, want 2/2", m.TotalAgents, m.TotalSites)
	}
}

func TestTimeTrackingMetricsSingleOpenShift(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	siteID := mustInsertSite(t, db, "Warehouse North", "WN1")

	from, to := MonthRange(2026, time.March, time.Local)
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	insertCompletedEntry(t, db, alice, siteID, day, 480)
	insertEntryAt(t, db, alice, siteID, day.Add(24*time.Hour), EntryActive)

	m, err := ComputeReportMetrics(db, "time_tracking", from, to, ReportFilters{})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	if m.TotalEntries != 2 {
		t.Fatalf("TotalEntries = %d, want 2", m.TotalEntries)
	}
	if m.TotalHours != 8.0 {
		t.Fatalf("TotalHours = %v, want 8.0", m.TotalHours)
	}
}

func TestTimeTrackingMetricsFilters(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	bob := mustInsertUser(t, db, "Bob", "bob@example.com", RoleAgent)
	siteA := mustInsertSite(t, db, "Warehouse North", "WN1")
	siteB := mustInsertSite(t, db, "Depot South", "DS1")

	from, to := MonthRange(2026, time.March, time.Local)
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	insertCompletedEntry(t, db, alice, siteA, day, 480)
	insertCompletedEntry(t, db, alice, siteB, day.Add(24*time.Hour), 240)
	insertCompletedEntry(t, db, bob, siteA, day.Add(48*time.Hour), 120)

	t.Run("by user", func(t *testing.T) {
		m, err := ComputeReportMetrics(db, "time_tracking", from, to, ReportFilters{UserID: &alice})
		if err != nil {
			t.Fatalf("ComputeReportMetrics failed: %v", err)
		}
		if m.TotalHours != 12.0 || m.TotalEntries != 2 {
			t.Fatalf("user filter: hours=%v entries=%d, want 12.0/2", m.TotalHours, m.TotalEntries)
		}
	})

	t.Run("by site", func(t *testing.T) {
		siteID := siteA
		m, err := ComputeReportMetrics(db, "time_tracking", from, to, ReportFilters{SiteID: &siteID})
		if err != nil {
			t.Fatalf("ComputeReportMetrics failed: %v", err)
		}
		if m.TotalHours != 10.0 || m.TotalEntries != 2 {
			t.Fatalf("site filter: hours=%v entries=%d, want 10.0/2", m.TotalHours, m.TotalEntries)
		}
	})
}

func TestAnomalyMetrics(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)

	insert := func(severity Severity, resolved bool) {
		_, err := db.Exec(
			`INSERT INTO anomaly_logs (anomaly_type, severity, user_id, description, resolved, created_at)
			 VALUES ('missed_clock_out', ?, ?, 'test', ?, ?)`,
			string(severity), alice, resolved, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		)
		if err != nil {
			t.Fatalf("inserting anomaly failed: %v", err)
		}
	}
	insert(SeverityHigh, false)
	insert(SeverityHigh, true)
	insert(SeverityLow, false)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	m, err := ComputeReportMetrics(db, "anomalies", from, to, ReportFilters{})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	if m.TotalAnomalies != 3 || m.ResolvedAnomalies != 1 || m.UnresolvedAnomalies != 2 {
		t.Fatalf("unexpected anomaly metrics: %+v", m)
	}

	m, err = ComputeReportMetrics(db, "anomalies", from, to, ReportFilters{Severity: "high"})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	if m.TotalAnomalies != 2 || m.ResolvedAnomalies != 1 || m.UnresolvedAnomalies != 1 {
		t.Fatalf("unexpected filtered metrics: %+v", m)
	}
}

func TestSchedulingMetrics(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	manager := mustInsertUser(t, db, "Mara", "mara@example.com", RoleManager)
	siteID := mustInsertSite(t, db, "Warehouse North", "WN1")

	mkSchedule := func(day int, status ScheduleStatus) {
		date := time.Date(2026, 3, day, 0, 0, 0, 0, time.Local)
		id := mustInsertSchedule(t, db, alice, siteID, manager, date)
		if status != ScheduleScheduled {
			if _, err := db.Exec(`UPDATE schedules SET status = ? WHERE id = ?`, string(status), id); err != nil {
				t.Fatalf("updating schedule status failed: %v", err)
			}
		}
	}
	mkSchedule(2, ScheduleCompleted)
	mkSchedule(3, ScheduleCompleted)
	mkSchedule(4, ScheduleMissed)
	mkSchedule(5, ScheduleScheduled)
	mkSchedule(6, ScheduleCancelled)

	from, to := MonthRange(2026, time.March, time.Local)
	m, err := ComputeReportMetrics(db, "scheduling", from, to, ReportFilters{})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	if m.TotalSchedules != 4 {
		t.Fatalf("TotalSchedules = %d, want 4 (cancelled excluded)", m.TotalSchedules)
	}
	if m.CompletedCount != 2 || m.MissedCount != 1 {
		t.Fatalf("completed/missed = %d/%d, want 2/1", m.CompletedCount, m.MissedCount)
	}
}

func TestHRMetricsAbsenceRate(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	manager := mustInsertUser(t, db, "Mara", "mara@example.com", RoleManager)
	siteID := mustInsertSite(t, db, "Warehouse North", "WN1")

	for day := 2; day <= 5; day++ {
		mustInsertSchedule(t, db, alice, siteID, manager, time.Date(2026, 3, day, 0, 0, 0, 0, time.Local))
	}
	if _, err := InsertAbsence(db, Absence{
		UserID: alice, Type: AbsenceSick, Status: AbsenceApproved,
		StartDate: time.Date(2026, 3, 4, 0, 0, 0, 0, time.Local),
		EndDate:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.Local),
		CreatedByID: manager,
	}); err != nil {
		t.Fatalf("InsertAbsence failed: %v", err)
	}

	from, to := MonthRange(2026, time.March, time.Local)
	m, err := ComputeReportMetrics(db, "hr", from, to, ReportFilters{})
	if err != nil {
		t.Fatalf("ComputeReportMetrics failed: %v", err)
	}
	if m.TotalAbsences != 1 {
		t.Fatalf("TotalAbsences = %d, want 1", m.TotalAbsences)
	}
	if m.AbsenceRate != 25.0 {
		t.Fatalf("AbsenceRate = %v, want 25.0", m.AbsenceRate)
	}
}

func TestComputeReportMetricsRejectsUnknownType(t *testing.T) {
	db := newTestDB(t)
	from, to := MonthRange(2026, time.March, time.Local)
	_, err := ComputeReportMetrics(db, "quarterly", from, to, ReportFilters{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGenerateReportPersistsSnapshot(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	manager := mustInsertUser(t, db, "Mara", "mara@example.com", RoleManager)
	siteID := mustInsertSite(t, db, "Warehouse North", "WN1")

	from, to := MonthRange(2026, time.March, time.Local)
	insertCompletedEntry(t, db, alice, siteID, time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local), 480)

	report, err := GenerateReport(db, "time_tracking", "", from, to, &manager, ReportFilters{})
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if report.ID == 0 {
		t.Fatal("expected persisted report ID")
	}
	if report.Title == "" {
		t.Fatal("expected generated title")
	}
	if report.Metrics.TotalHours != 8.0 {
		t.Fatalf("TotalHours = %v, want 8.0", report.Metrics.TotalHours)
	}

	reread, err := GetReportByID(db, report.ID)
	if err != nil {
		t.Fatalf("GetReportByID failed: %v", err)
	}
	if reread.Metrics.TotalHours != 8.0 || reread.ReportType != "time_tracking" {
		t.Fatalf("snapshot mismatch: %+v", reread)
	}

	if _, err := GenerateReport(db, "time_tracking", "", to, from, &manager, ReportFilters{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for inverted period, got %v", err)
	}
}

func TestFormatReportSummary(t *testing.T) {
	siteID := int64(3)
	r := Report{
		Title:       "March time tracking",
		ReportType:  "time_tracking",
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Filters:     ReportFilters{SiteID: &siteID},
		Metrics:     ReportMetrics{TotalHours: 123.5, TotalEntries: 17, TotalAgents: 4, TotalSites: 1},
	}
	out := FormatReportSummary(r)
	for _, want := range []string{"March time tracking", "2026-03-01 to 2026-04-01", "123.5", "Entries: 17", "Filtered to site 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
