package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ComputeReportMetrics aggregates the stores over [from, to). Metrics are
// computed fresh on every call; the reports table only snapshots the result.
// Which blocks run depends on the report type: time-focused types skip the
// anomaly and scheduling queries and vice versa.
func ComputeReportMetrics(db *sql.DB, reportType string, from, to time.Time, filters ReportFilters) (ReportMetrics, error) {
	if !ValidReportType(reportType) {
		return ReportMetrics{}, fmt.Errorf("%w: unknown report type %q", ErrValidation, reportType)
	}

	var m ReportMetrics
	var err error

	switch reportType {
	case "time_tracking", "monthly", "payroll_export":
		if err = computeTimeMetrics(db, from, to, filters, &m); err != nil {
			return m, err
		}
	case "anomalies":
		if err = computeAnomalyMetrics(db, from, to, filters, &m); err != nil {
			return m, err
		}
	case "hr":
		if err = computeTimeMetrics(db, from, to, filters, &m); err != nil {
			return m, err
		}
		if err = computeAbsenceMetrics(db, from, to, filters, &m); err != nil {
			return m, err
		}
	case "scheduling":
		if err = computeScheduleMetrics(db, from, to, filters, &m); err != nil {
			return m, err
		}
	}
	return m, nil
}

func computeTimeMetrics(db *sql.DB, from, to time.Time, filters ReportFilters, m *ReportMetrics) error {
	// Every ranged entry counts toward the totals, whatever its status.
	// Only the hours sum skips the null durations still-open entries carry;
	// SUM does that on its own.
	query := `SELECT COALESCE(SUM(duration_minutes), 0), COUNT(*),
	            COUNT(DISTINCT user_id), COUNT(DISTINCT site_id)
	          FROM time_entries
	          WHERE clocked_in_at >= ? AND clocked_in_at < ?`
	args := []any{from, to}
	if filters.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	if filters.SiteID != nil {
		query += ` AND site_id = ?`
		args = append(args, *filters.SiteID)
	}

	var totalMinutes int64
	err := db.QueryRow(query, args...).Scan(&totalMinutes, &m.TotalEntries, &m.TotalAgents, &m.TotalSites)
	if err != nil {
		return fmt.Errorf("aggregating time entries: %w", err)
	}
	m.TotalHours = float64(totalMinutes) / 60.0
	return nil
}

func computeAnomalyMetrics(db *sql.DB, from, to time.Time, filters ReportFilters, m *ReportMetrics) error {
	query := `SELECT COUNT(*),
	            COALESCE(SUM(CASE WHEN resolved = 1 THEN 1 ELSE 0 END), 0),
	            COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0)
	          FROM anomaly_logs
	          WHERE created_at >= ? AND created_at < ?`
	args := []any{from, to}
	if filters.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	if filters.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, filters.Severity)
	}

	err := db.QueryRow(query, args...).Scan(&m.TotalAnomalies, &m.ResolvedAnomalies, &m.UnresolvedAnomalies)
	if err != nil {
		return fmt.Errorf("aggregating anomalies: %w", err)
	}
	return nil
}

func computeAbsenceMetrics(db *sql.DB, from, to time.Time, filters ReportFilters, m *ReportMetrics) error {
	query := `SELECT COUNT(*) FROM absences
	          WHERE status = 'approved' AND start_date < ? AND end_date >= ?`
	args := []any{to.Format(dateLayout), from.Format(dateLayout)}
	if filters.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	if err := db.QueryRow(query, args...).Scan(&m.TotalAbsences); err != nil {
		return fmt.Errorf("aggregating absences: %w", err)
	}

	// Absence rate is absences per scheduled shift in the period, as a
	// percentage. Zero schedules means a zero rate, not a division error.
	schedQuery := `SELECT COUNT(*) FROM schedules
	               WHERE scheduled_date >= ? AND scheduled_date < ? AND status != 'cancelled'`
	schedArgs := []any{from.Format(dateLayout), to.Format(dateLayout)}
	if filters.UserID != nil {
		schedQuery += ` AND user_id = ?`
		schedArgs = append(schedArgs, *filters.UserID)
	}
	var scheduled int
	if err := db.QueryRow(schedQuery, schedArgs...).Scan(&scheduled); err != nil {
		return fmt.Errorf("counting schedules: %w", err)
	}
	if scheduled > 0 {
		m.AbsenceRate = float64(m.TotalAbsences) / float64(scheduled) * 100.0
	}
	return nil
}

func computeScheduleMetrics(db *sql.DB, from, to time.Time, filters ReportFilters, m *ReportMetrics) error {
	query := `SELECT COUNT(*),
	            COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
	            COALESCE(SUM(CASE WHEN status = 'missed' THEN 1 ELSE 0 END), 0)
	          FROM schedules
	          WHERE scheduled_date >= ? AND scheduled_date < ? AND status != 'cancelled'`
	args := []any{from.Format(dateLayout), to.Format(dateLayout)}
	if filters.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	if filters.SiteID != nil {
		query += ` AND site_id = ?`
		args = append(args, *filters.SiteID)
	}

	err := db.QueryRow(query, args...).Scan(&m.TotalSchedules, &m.CompletedCount, &m.MissedCount)
	if err != nil {
		return fmt.Errorf("aggregating schedules: %w", err)
	}
	return nil
}

// GenerateReport computes the metrics for the period and persists the
// snapshot, filters included, so a saved report can be re-read later exactly
// as it was generated.
func GenerateReport(db *sql.DB, reportType, title string, from, to time.Time, generatedBy *int64, filters ReportFilters) (Report, error) {
	if !to.After(from) {
		return Report{}, fmt.Errorf("%w: period end must be after period start", ErrValidation)
	}
	metrics, err := ComputeReportMetrics(db, reportType, from, to, filters)
	if err != nil {
		return Report{}, err
	}

	if title == "" {
		title = fmt.Sprintf("%s report %s to %s", strings.ReplaceAll(reportType, "_", " "),
			from.Format(dateLayout), to.Format(dateLayout))
	}
	r := Report{
		Title:         title,
		ReportType:    reportType,
		PeriodStart:   from,
		PeriodEnd:     to,
		GeneratedAt:   time.Now(),
		GeneratedByID: generatedBy,
		Filters:       filters,
		Metrics:       metrics,
	}
	id, err := InsertReport(db, r)
	if err != nil {
		return Report{}, fmt.Errorf("saving report: %w", err)
	}
	return GetReportByID(db, id)
}

// FormatReportSummary renders a report as chat text.
func FormatReportSummary(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", r.Title)
	fmt.Fprintf(&b, "Period: %s to %s\n", r.PeriodStart.Format(dateLayout), r.PeriodEnd.Format(dateLayout))

	switch r.ReportType {
	case "time_tracking", "monthly", "payroll_export":
		fmt.Fprintf(&b, "Total hours: %.1f\n", r.Metrics.TotalHours)
		fmt.Fprintf(&b, "Entries: %d | Agents: %d | Sites: %d\n",
			r.Metrics.TotalEntries, r.Metrics.TotalAgents, r.Metrics.TotalSites)
	case "anomalies":
		fmt.Fprintf(&b, "Anomalies: %d (%d resolved, %d open)\n",
			r.Metrics.TotalAnomalies, r.Metrics.ResolvedAnomalies, r.Metrics.UnresolvedAnomalies)
	case "hr":
		fmt.Fprintf(&b, "Total hours: %.1f across %d entries\n", r.Metrics.TotalHours, r.Metrics.TotalEntries)
		fmt.Fprintf(&b, "Absences: %d (rate %.1f%%)\n", r.Metrics.TotalAbsences, r.Metrics.AbsenceRate)
	case "scheduling":
		fmt.Fprintf(&b, "Schedules: %d | Completed: %d | Missed: %d\n",
			r.Metrics.TotalSchedules, r.Metrics.CompletedCount, r.Metrics.MissedCount)
	}

	if r.Filters.UserID != nil {
		fmt.Fprintf(&b, "Filtered to user %d\n", *r.Filters.UserID)
	}
	if r.Filters.SiteID != nil {
		fmt.Fprintf(&b, "Filtered to site %d\n", *r.Filters.SiteID)
	}
	if r.Filters.Severity != "" {
		fmt.Fprintf(&b, "Filtered to severity %s\n", r.Filters.Severity)
	}
	return strings.TrimRight(b.String(), "\n")
}
