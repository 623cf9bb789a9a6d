package main

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name       TEXT NOT NULL,
		email           TEXT NOT NULL UNIQUE,
		role            TEXT NOT NULL DEFAULT 'agent',
		employee_number TEXT DEFAULT '',
		slack_user_id   TEXT DEFAULT '',
		active          INTEGER NOT NULL DEFAULT 1,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_slack_user_id ON users(slack_user_id);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS sites (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		code       TEXT NOT NULL UNIQUE,
		qr_token   TEXT NOT NULL UNIQUE,
		address    TEXT DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS time_entries (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id            INTEGER NOT NULL,
		site_id            INTEGER NOT NULL,
		clocked_in_at      DATETIME NOT NULL,
		clocked_out_at     DATETIME,
		duration_minutes   INTEGER,
		status             TEXT NOT NULL DEFAULT 'active',
		ip_address_in      TEXT DEFAULT '',
		ip_address_out     TEXT DEFAULT '',
		user_agent_in      TEXT DEFAULT '',
		user_agent_out     TEXT DEFAULT '',
		notes              TEXT DEFAULT '',
		manually_corrected INTEGER NOT NULL DEFAULT 0,
		corrected_by_id    INTEGER,
		corrected_at       DATETIME,
		created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_time_entries_user_in ON time_entries(user_id, clocked_in_at);
	CREATE INDEX IF NOT EXISTS idx_time_entries_site_in ON time_entries(site_id, clocked_in_at);
	CREATE INDEX IF NOT EXISTS idx_time_entries_status ON time_entries(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_single_active
		ON time_entries(user_id) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS schedules (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id            INTEGER NOT NULL,
		site_id            INTEGER NOT NULL,
		scheduled_date     TEXT NOT NULL,
		start_time         TEXT NOT NULL,
		end_time           TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'scheduled',
		notes              TEXT DEFAULT '',
		created_by_id      INTEGER NOT NULL,
		replaced_by_id     INTEGER,
		replacement_reason TEXT DEFAULT '',
		created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_user_date ON schedules(user_id, scheduled_date);
	CREATE INDEX IF NOT EXISTS idx_schedules_site_date ON schedules(site_id, scheduled_date);
	CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);

	CREATE TABLE IF NOT EXISTS anomaly_logs (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		anomaly_type     TEXT NOT NULL,
		severity         TEXT NOT NULL DEFAULT 'medium',
		user_id          INTEGER,
		time_entry_id    INTEGER,
		schedule_id      INTEGER,
		description      TEXT NOT NULL,
		resolved         INTEGER NOT NULL DEFAULT 0,
		resolved_by_id   INTEGER,
		resolved_at      DATETIME,
		resolution_notes TEXT DEFAULT '',
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_anomaly_logs_type ON anomaly_logs(anomaly_type);
	CREATE INDEX IF NOT EXISTS idx_anomaly_logs_resolved ON anomaly_logs(resolved);
	CREATE INDEX IF NOT EXISTS idx_anomaly_logs_created ON anomaly_logs(created_at);

	CREATE TABLE IF NOT EXISTS absences (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		absence_type  TEXT NOT NULL DEFAULT 'vacation',
		status        TEXT NOT NULL DEFAULT 'pending',
		start_date    TEXT NOT NULL,
		end_date      TEXT NOT NULL,
		reason        TEXT DEFAULT '',
		created_by_id INTEGER NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_absences_user_dates ON absences(user_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS reports (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		title                TEXT NOT NULL,
		report_type          TEXT NOT NULL,
		period_start         DATETIME NOT NULL,
		period_end           DATETIME NOT NULL,
		generated_at         DATETIME NOT NULL,
		generated_by_id      INTEGER,
		description          TEXT DEFAULT '',
		filters_applied      TEXT DEFAULT '{}',
		total_hours          REAL DEFAULT 0,
		total_entries        INTEGER DEFAULT 0,
		total_agents         INTEGER DEFAULT 0,
		total_sites          INTEGER DEFAULT 0,
		total_anomalies      INTEGER DEFAULT 0,
		resolved_anomalies   INTEGER DEFAULT 0,
		unresolved_anomalies INTEGER DEFAULT 0,
		total_absences       INTEGER DEFAULT 0,
		absence_rate         REAL DEFAULT 0,
		total_schedules      INTEGER DEFAULT 0,
		completed_count      INTEGER DEFAULT 0,
		missed_count         INTEGER DEFAULT 0,
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(report_type);
	CREATE INDEX IF NOT EXISTS idx_reports_period ON reports(period_start, period_end);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	// Migration: add telegram_chat_id column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'telegram_chat_id'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE users ADD COLUMN telegram_chat_id INTEGER DEFAULT 0`)
	}

	return db, nil
}

// --- Users ---

func InsertUser(db *sql.DB, u User) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO users (full_name, email, role, employee_number, slack_user_id, telegram_chat_id, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.FullName, u.Email, string(u.Role), u.EmployeeNumber, u.SlackUserID, u.TelegramChatID, u.Active,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const userColumns = `id, full_name, email, role, employee_number, slack_user_id, telegram_chat_id, active, created_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.Role, &u.EmployeeNumber,
		&u.SlackUserID, &u.TelegramChatID, &u.Active, &u.CreatedAt,
	)
	return u, err
}

func GetUserByID(db *sql.DB, id int64) (User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func GetUserBySlackID(db *sql.DB, slackUserID string) (User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE slack_user_id = ?`, slackUserID))
}

func GetUserByEmail(db *sql.DB, email string) (User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// SetUserSlackID links (or relinks) an existing profile to a Slack account.
func SetUserSlackID(db *sql.DB, userID int64, slackUserID string) error {
	_, err := db.Exec(`UPDATE users SET slack_user_id = ? WHERE id = ?`, slackUserID, userID)
	return err
}

// --- Sites ---

func InsertSite(db *sql.DB, s Site) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO sites (name, code, qr_token, address, active) VALUES (?, ?, ?, ?, ?)`,
		s.Name, s.Code, s.QRToken, s.Address, s.Active,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const siteColumns = `id, name, code, qr_token, address, active, created_at`

func scanSite(row *sql.Row) (Site, error) {
	var s Site
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.QRToken, &s.Address, &s.Active, &s.CreatedAt)
	return s, err
}

func GetSiteByID(db *sql.DB, id int64) (Site, error) {
	return scanSite(db.QueryRow(`SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
}

// GetSiteByCode resolves the short code agents type after scanning a QR
// poster. Only active sites accept clockings.
func GetSiteByCode(db *sql.DB, code string) (Site, error) {
	return scanSite(db.QueryRow(`SELECT `+siteColumns+` FROM sites WHERE code = ? AND active = 1`, code))
}

// --- Time entries ---

const timeEntryColumns = `id, user_id, site_id, clocked_in_at, clocked_out_at, duration_minutes,
	status, ip_address_in, ip_address_out, user_agent_in, user_agent_out, notes,
	manually_corrected, corrected_by_id, corrected_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeEntry(row rowScanner) (TimeEntry, error) {
	var e TimeEntry
	var out, correctedAt sql.NullTime
	var duration, correctedBy sql.NullInt64
	err := row.Scan(
		&e.ID, &e.UserID, &e.SiteID, &e.ClockedInAt, &out, &duration,
		&e.Status, &e.IPAddressIn, &e.IPAddressOut, &e.UserAgentIn, &e.UserAgentOut, &e.Notes,
		&e.ManuallyCorrected, &correctedBy, &correctedAt, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}
	if out.Valid {
		t := out.Time
		e.ClockedOutAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationMinutes = &d
	}
	if correctedBy.Valid {
		id := correctedBy.Int64
		e.CorrectedByID = &id
	}
	if correctedAt.Valid {
		t := correctedAt.Time
		e.CorrectedAt = &t
	}
	return e, nil
}

func GetTimeEntryByID(db *sql.DB, id int64) (TimeEntry, error) {
	return scanTimeEntry(db.QueryRow(`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id))
}

// GetActiveEntryForUser returns the user's active entry at any site, or nil.
func GetActiveEntryForUser(db *sql.DB, userID int64) (*TimeEntry, error) {
	e, err := scanTimeEntry(db.QueryRow(
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id = ? AND status = 'active'`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetActiveEntryForUserAtSite returns the user's active entry at the given
// site, or nil. Clock-out is site-scoped, so an active entry elsewhere does
// not match.
func GetActiveEntryForUserAtSite(db *sql.DB, userID, siteID int64) (*TimeEntry, error) {
	e, err := scanTimeEntry(db.QueryRow(
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE user_id = ? AND site_id = ? AND status = 'active'`, userID, siteID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func queryTimeEntries(db *sql.DB, query string, args ...any) ([]TimeEntry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetActiveEntriesStartedBefore returns active entries whose clock-in is
// older than the cutoff, oldest first.
func GetActiveEntriesStartedBefore(db *sql.DB, cutoff time.Time) ([]TimeEntry, error) {
	return queryTimeEntries(db,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE status = 'active' AND clocked_in_at < ?
		 ORDER BY clocked_in_at`, cutoff)
}

// GetOpenEntries returns entries that still lack a clock-out, including ones
// already flagged as anomalies, grouped by user.
func GetOpenEntries(db *sql.DB) ([]TimeEntry, error) {
	return queryTimeEntries(db,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE clocked_out_at IS NULL AND status IN ('active', 'anomaly')
		 ORDER BY user_id, clocked_in_at`)
}

// ListActiveEntries returns every active entry ordered by user, for the
// multiple-active detector pass.
func ListActiveEntries(db *sql.DB) ([]TimeEntry, error) {
	return queryTimeEntries(db,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE status = 'active'
		 ORDER BY user_id, clocked_in_at`)
}

// GetActiveEntriesForSite lists who is currently on a site, newest first.
func GetActiveEntriesForSite(db *sql.DB, siteID int64) ([]TimeEntry, error) {
	return queryTimeEntries(db,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE site_id = ? AND status = 'active'
		 ORDER BY clocked_in_at DESC`, siteID)
}

func EntryExistsForUserSiteBetween(db *sql.DB, userID, siteID int64, from, to time.Time) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM time_entries
		 WHERE user_id = ? AND site_id = ? AND clocked_in_at >= ? AND clocked_in_at < ?`,
		userID, siteID, from, to,
	).Scan(&count)
	return count > 0, err
}

func EntryExistsForUserBetween(db *sql.DB, userID int64, from, to time.Time) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM time_entries
		 WHERE user_id = ? AND clocked_in_at >= ? AND clocked_in_at < ?`,
		userID, from, to,
	).Scan(&count)
	return count > 0, err
}

// --- Schedules ---

func InsertSchedule(db *sql.DB, s Schedule) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO schedules (user_id, site_id, scheduled_date, start_time, end_time, status, notes, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.SiteID, s.ScheduledDate.Format(dateLayout), s.StartTime, s.EndTime,
		string(s.Status), s.Notes, s.CreatedByID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const scheduleColumns = `id, user_id, site_id, scheduled_date, start_time, end_time, status,
	notes, created_by_id, replaced_by_id, replacement_reason, created_at`

func scanSchedule(row rowScanner) (Schedule, error) {
	var s Schedule
	var date string
	var replacedBy sql.NullInt64
	err := row.Scan(
		&s.ID, &s.UserID, &s.SiteID, &date, &s.StartTime, &s.EndTime, &s.Status,
		&s.Notes, &s.CreatedByID, &replacedBy, &s.ReplacementReason, &s.CreatedAt,
	)
	if err != nil {
		return s, err
	}
	s.ScheduledDate, err = time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return s, err
	}
	if replacedBy.Valid {
		id := replacedBy.Int64
		s.ReplacedByID = &id
	}
	return s, nil
}

func GetScheduleByID(db *sql.DB, id int64) (Schedule, error) {
	return scanSchedule(db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
}

// HasOverlappingSchedule reports whether the user already has a schedule on
// the date whose [start, end) interval intersects the given one.
func HasOverlappingSchedule(db *sql.DB, userID int64, date time.Time, start, end string, excludeID int64) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM schedules
		 WHERE user_id = ? AND scheduled_date = ? AND id != ?
		   AND status != 'cancelled'
		   AND start_time < ? AND end_time > ?`,
		userID, date.Format(dateLayout), excludeID, end, start,
	).Scan(&count)
	return count > 0, err
}

// ListPastScheduled returns schedules still in 'scheduled' whose date is
// before the given day, i.e. shifts whose outcome is now decidable.
func ListPastScheduled(db *sql.DB, before time.Time) ([]Schedule, error) {
	rows, err := db.Query(
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE status = 'scheduled' AND scheduled_date < ?
		 ORDER BY scheduled_date, id`,
		before.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// updateScheduleStatusIfScheduled applies a guarded transition: it only takes
// effect while the schedule is still 'scheduled', and reports whether it did.
func updateScheduleStatusIfScheduled(db *sql.DB, id int64, status ScheduleStatus) (bool, error) {
	res, err := db.Exec(
		`UPDATE schedules SET status = ? WHERE id = ? AND status = 'scheduled'`,
		string(status), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func SetScheduleReplacement(db *sql.DB, id, replacementUserID int64, reason string) error {
	_, err := db.Exec(
		`UPDATE schedules SET replaced_by_id = ?, replacement_reason = ? WHERE id = ?`,
		replacementUserID, reason, id,
	)
	return err
}

// --- Anomaly logs ---

const anomalyColumns = `id, anomaly_type, severity, user_id, time_entry_id, schedule_id,
	description, resolved, resolved_by_id, resolved_at, resolution_notes, created_at`

func scanAnomaly(row rowScanner) (AnomalyLog, error) {
	var a AnomalyLog
	var userID, entryID, scheduleID, resolvedBy sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Type, &a.Severity, &userID, &entryID, &scheduleID,
		&a.Description, &a.Resolved, &resolvedBy, &resolvedAt, &a.ResolutionNotes, &a.CreatedAt,
	)
	if err != nil {
		return a, err
	}
	if userID.Valid {
		id := userID.Int64
		a.UserID = &id
	}
	if entryID.Valid {
		id := entryID.Int64
		a.TimeEntryID = &id
	}
	if scheduleID.Valid {
		id := scheduleID.Int64
		a.ScheduleID = &id
	}
	if resolvedBy.Valid {
		id := resolvedBy.Int64
		a.ResolvedByID = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

func GetAnomalyByID(db *sql.DB, id int64) (AnomalyLog, error) {
	return scanAnomaly(db.QueryRow(`SELECT `+anomalyColumns+` FROM anomaly_logs WHERE id = ?`, id))
}

// HasUnresolvedAnomalyForSchedule is the deduplication check: repeated
// detector runs must not stack duplicate alerts on the same schedule. The
// entry-linked equivalent lives inside createEntryAnomaly's transaction.
func HasUnresolvedAnomalyForSchedule(db *sql.DB, typ AnomalyType, scheduleID int64) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM anomaly_logs
		 WHERE anomaly_type = ? AND schedule_id = ? AND resolved = 0`,
		string(typ), scheduleID,
	).Scan(&count)
	return count > 0, err
}

func ListAnomalies(db *sql.DB, onlyUnresolved bool, limit int) ([]AnomalyLog, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomaly_logs`
	if onlyUnresolved {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []AnomalyLog
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// ListUnresolvedAnomaliesSince feeds the weekly digest.
func ListUnresolvedAnomaliesSince(db *sql.DB, since time.Time) ([]AnomalyLog, error) {
	rows, err := db.Query(
		`SELECT `+anomalyColumns+` FROM anomaly_logs
		 WHERE resolved = 0 AND created_at >= ?
		 ORDER BY severity = 'high' DESC, created_at`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []AnomalyLog
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// --- Absences ---

func InsertAbsence(db *sql.DB, a Absence) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO absences (user_id, absence_type, status, start_date, end_date, reason, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, string(a.Type), string(a.Status),
		a.StartDate.Format(dateLayout), a.EndDate.Format(dateLayout), a.Reason, a.CreatedByID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasApprovedAbsenceOn reports whether the user has an approved absence
// covering the given date. Planned shifts during approved leave do not
// produce schedule anomalies.
func HasApprovedAbsenceOn(db *sql.DB, userID int64, date time.Time) (bool, error) {
	day := date.Format(dateLayout)
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM absences
		 WHERE user_id = ? AND status = 'approved' AND start_date <= ? AND end_date >= ?`,
		userID, day, day,
	).Scan(&count)
	return count > 0, err
}

// --- Reports ---

func InsertReport(db *sql.DB, r Report) (int64, error) {
	filters, err := json.Marshal(r.Filters)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(
		`INSERT INTO reports (title, report_type, period_start, period_end, generated_at, generated_by_id,
		   description, filters_applied, total_hours, total_entries, total_agents, total_sites,
		   total_anomalies, resolved_anomalies, unresolved_anomalies,
		   total_absences, absence_rate, total_schedules, completed_count, missed_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Title, r.ReportType, r.PeriodStart, r.PeriodEnd, r.GeneratedAt, r.GeneratedByID,
		r.Description, string(filters),
		r.Metrics.TotalHours, r.Metrics.TotalEntries, r.Metrics.TotalAgents, r.Metrics.TotalSites,
		r.Metrics.TotalAnomalies, r.Metrics.ResolvedAnomalies, r.Metrics.UnresolvedAnomalies,
		r.Metrics.TotalAbsences, r.Metrics.AbsenceRate,
		r.Metrics.TotalSchedules, r.Metrics.CompletedCount, r.Metrics.MissedCount,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetReportByID(db *sql.DB, id int64) (Report, error) {
	var r Report
	var generatedBy sql.NullInt64
	var filters string
	err := db.QueryRow(
		`SELECT id, title, report_type, period_start, period_end, generated_at, generated_by_id,
		   description, filters_applied, total_hours, total_entries, total_agents, total_sites,
		   total_anomalies, resolved_anomalies, unresolved_anomalies,
		   total_absences, absence_rate, total_schedules, completed_count, missed_count, created_at
		 FROM reports WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.Title, &r.ReportType, &r.PeriodStart, &r.PeriodEnd, &r.GeneratedAt, &generatedBy,
		&r.Description, &filters,
		&r.Metrics.TotalHours, &r.Metrics.TotalEntries, &r.Metrics.TotalAgents, &r.Metrics.TotalSites,
		&r.Metrics.TotalAnomalies, &r.Metrics.ResolvedAnomalies, &r.Metrics.UnresolvedAnomalies,
		&r.Metrics.TotalAbsences, &r.Metrics.AbsenceRate,
		&r.Metrics.TotalSchedules, &r.Metrics.CompletedCount, &r.Metrics.MissedCount, &r.CreatedAt,
	)
	if err != nil {
		return r, err
	}
	if generatedBy.Valid {
		id := generatedBy.Int64
		r.GeneratedByID = &id
	}
	if err := json.Unmarshal([]byte(filters), &r.Filters); err != nil {
		return r, err
	}
	return r, nil
}
