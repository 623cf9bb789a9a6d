package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// SweepResult tracks separate counters for each detector rule plus the
// schedule adherence pass.
type SweepResult struct {
	Over24h            int
	MissedClockOuts    int
	MultipleActive     int
	SchedulesCompleted int
	SchedulesMissed    int
	ScheduleMismatches int
	MissedClockIns     int
	Deduplicated       int
	Errors             []string

	// NewAnomalies are the logs created during this sweep, for alerting.
	NewAnomalies []AnomalyLog
}

func (r SweepResult) TotalNew() int {
	return len(r.NewAnomalies)
}

// RunAnomalySweep evaluates every detector rule over the whole store. One
// bad row never aborts the sweep: per-entity failures are logged, counted,
// and skipped. The sweep is safe to re-run at any cadence; deduplication
// keeps repeated runs from stacking alerts.
func RunAnomalySweep(db *sql.DB, now time.Time) (SweepResult, error) {
	var result SweepResult

	if err := sweepOver24h(db, now, &result); err != nil {
		return result, err
	}
	if err := sweepMissedClockOuts(db, now, &result); err != nil {
		return result, err
	}
	if err := sweepMultipleActive(db, &result); err != nil {
		return result, err
	}
	if err := sweepScheduleAdherence(db, now, &result); err != nil {
		return result, err
	}
	return result, nil
}

func sweepOver24h(db *sql.DB, now time.Time, result *SweepResult) error {
	entries, err := GetActiveEntriesStartedBefore(db, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("querying over-24h entries: %w", err)
	}
	for _, entry := range entries {
		hours := int(now.Sub(entry.ClockedInAt).Hours())
		desc := fmt.Sprintf("Entry active for more than 24 hours (%dh) at %s", hours, siteLabel(db, entry.SiteID))
		anomaly, created, err := createEntryAnomaly(db, AnomalyOver24h, SeverityHigh, entry, desc)
		if err != nil {
			log.Printf("sweep over-24h entry=%d error: %v", entry.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", entry.ID, err))
			continue
		}
		if !created {
			result.Deduplicated++
			continue
		}
		result.Over24h++
		result.NewAnomalies = append(result.NewAnomalies, anomaly)
	}
	return nil
}

func sweepMissedClockOuts(db *sql.DB, now time.Time, result *SweepResult) error {
	startOfToday, _ := DayRange(now)
	entries, err := GetActiveEntriesStartedBefore(db, startOfToday)
	if err != nil {
		return fmt.Errorf("querying carried-over entries: %w", err)
	}
	for _, entry := range entries {
		desc := fmt.Sprintf("No clock-out recorded at %s for the shift started %s",
			siteLabel(db, entry.SiteID), entry.ClockedInAt.Format(dateLayout))
		anomaly, created, err := createEntryAnomaly(db, AnomalyMissedClockOut, SeverityMedium, entry, desc)
		if err != nil {
			log.Printf("sweep missed-clock-out entry=%d error: %v", entry.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", entry.ID, err))
			continue
		}
		if !created {
			result.Deduplicated++
			continue
		}
		result.MissedClockOuts++
		result.NewAnomalies = append(result.NewAnomalies, anomaly)
	}
	return nil
}

// sweepMultipleActive flags users holding several simultaneous active
// entries from at least two distinct clock-in addresses. The single-active
// index makes this unreachable for new data; rows predating it can still
// trip the rule.
func sweepMultipleActive(db *sql.DB, result *SweepResult) error {
	entries, err := ListActiveEntries(db)
	if err != nil {
		return fmt.Errorf("querying active entries: %w", err)
	}

	byUser := make(map[int64][]TimeEntry)
	for _, e := range entries {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	for userID, userEntries := range byUser {
		if len(userEntries) < 2 {
			continue
		}
		ips := make(map[string]bool)
		for _, e := range userEntries {
			ips[e.IPAddressIn] = true
		}
		if len(ips) < 2 {
			continue
		}
		first := userEntries[0]
		desc := fmt.Sprintf("%d simultaneous active entries from %d distinct IP addresses", len(userEntries), len(ips))
		anomaly, created, err := createEntryAnomaly(db, AnomalyMultipleActive, SeverityHigh, first, desc)
		if err != nil {
			log.Printf("sweep multiple-active user=%d error: %v", userID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("user %d: %v", userID, err))
			continue
		}
		if !created {
			result.Deduplicated++
			continue
		}
		result.MultipleActive++
		result.NewAnomalies = append(result.NewAnomalies, anomaly)
	}
	return nil
}

func sweepScheduleAdherence(db *sql.DB, now time.Time, result *SweepResult) error {
	today, _ := DayRange(now)
	schedules, err := ListPastScheduled(db, today)
	if err != nil {
		return fmt.Errorf("querying past schedules: %w", err)
	}
	for _, s := range schedules {
		completed, err := CheckScheduleCompletion(db, s.ID)
		if err != nil {
			log.Printf("sweep adherence schedule=%d error: %v", s.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %d: %v", s.ID, err))
			continue
		}
		if completed {
			result.SchedulesCompleted++
			continue
		}

		if err := MarkScheduleMissed(db, s.ID); err != nil {
			log.Printf("sweep adherence schedule=%d mark-missed error: %v", s.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %d: %v", s.ID, err))
			continue
		}
		result.SchedulesMissed++

		// A planned shift during approved leave is not an anomaly.
		excused, err := HasApprovedAbsenceOn(db, s.UserID, s.ScheduledDate)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %d: %v", s.ID, err))
			continue
		}
		if excused {
			continue
		}

		from, to := DayRange(s.ScheduledDate)
		clockedElsewhere, err := EntryExistsForUserBetween(db, s.UserID, from, to)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %d: %v", s.ID, err))
			continue
		}

		typ, severity := AnomalyMissedClockIn, SeverityLow
		desc := fmt.Sprintf("No clock-in recorded for the %.1fh shift planned on %s",
			ScheduleDurationHours(s), s.ScheduledDate.Format(dateLayout))
		if clockedElsewhere {
			typ, severity = AnomalyScheduleMismatch, SeverityMedium
			desc = fmt.Sprintf("Agent did not clock in at %s despite a %.1fh shift scheduled there on %s",
				siteLabel(db, s.SiteID), ScheduleDurationHours(s), s.ScheduledDate.Format(dateLayout))
		}
		anomaly, created, err := createScheduleAnomaly(db, typ, severity, s, desc)
		if err != nil {
			log.Printf("sweep adherence schedule=%d anomaly error: %v", s.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("schedule %d: %v", s.ID, err))
			continue
		}
		if !created {
			result.Deduplicated++
			continue
		}
		if typ == AnomalyScheduleMismatch {
			result.ScheduleMismatches++
		} else {
			result.MissedClockIns++
		}
		result.NewAnomalies = append(result.NewAnomalies, anomaly)
	}
	return nil
}

// DetectEntryAnomalies runs the entry-linked rules against a single entry,
// the on-demand counterpart of the batch sweep.
func DetectEntryAnomalies(db *sql.DB, entryID int64, now time.Time) ([]AnomalyLog, error) {
	entry, err := GetTimeEntryByID(db, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: time entry %d", ErrNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}
	if entry.Status != EntryActive {
		return nil, nil
	}

	var created []AnomalyLog
	if now.Sub(entry.ClockedInAt) > 24*time.Hour {
		hours := int(now.Sub(entry.ClockedInAt).Hours())
		desc := fmt.Sprintf("Entry active for more than 24 hours (%dh) at %s", hours, siteLabel(db, entry.SiteID))
		a, ok, err := createEntryAnomaly(db, AnomalyOver24h, SeverityHigh, entry, desc)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, a)
		}
		return created, nil
	}

	startOfToday, _ := DayRange(now)
	if entry.ClockedInAt.Before(startOfToday) {
		desc := fmt.Sprintf("No clock-out recorded at %s for the shift started %s",
			siteLabel(db, entry.SiteID), entry.ClockedInAt.Format(dateLayout))
		a, ok, err := createEntryAnomaly(db, AnomalyMissedClockOut, SeverityMedium, entry, desc)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, a)
		}
	}
	return created, nil
}

// createEntryAnomaly inserts the log and flips the linked entry to anomaly
// status in one transaction. Detection is not read-only. Returns false when
// an unresolved anomaly of the same type already references the entry.
func createEntryAnomaly(db *sql.DB, typ AnomalyType, severity Severity, entry TimeEntry, description string) (AnomalyLog, bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return AnomalyLog{}, false, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM anomaly_logs WHERE anomaly_type = ? AND time_entry_id = ? AND resolved = 0`,
		string(typ), entry.ID,
	).Scan(&count)
	if err != nil {
		return AnomalyLog{}, false, err
	}
	if count > 0 {
		return AnomalyLog{}, false, nil
	}

	res, err := tx.Exec(
		`INSERT INTO anomaly_logs (anomaly_type, severity, user_id, time_entry_id, description)
		 VALUES (?, ?, ?, ?, ?)`,
		string(typ), string(severity), entry.UserID, entry.ID, description,
	)
	if err != nil {
		return AnomalyLog{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AnomalyLog{}, false, err
	}

	_, err = tx.Exec(
		`UPDATE time_entries SET status = 'anomaly', notes = ? WHERE id = ?`,
		appendNote(entry.Notes, description), entry.ID,
	)
	if err != nil {
		return AnomalyLog{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return AnomalyLog{}, false, err
	}
	anomaly, err := GetAnomalyByID(db, id)
	return anomaly, true, err
}

func createScheduleAnomaly(db *sql.DB, typ AnomalyType, severity Severity, s Schedule, description string) (AnomalyLog, bool, error) {
	exists, err := HasUnresolvedAnomalyForSchedule(db, typ, s.ID)
	if err != nil {
		return AnomalyLog{}, false, err
	}
	if exists {
		return AnomalyLog{}, false, nil
	}

	res, err := db.Exec(
		`INSERT INTO anomaly_logs (anomaly_type, severity, user_id, schedule_id, description)
		 VALUES (?, ?, ?, ?, ?)`,
		string(typ), string(severity), s.UserID, s.ID, description,
	)
	if err != nil {
		return AnomalyLog{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return AnomalyLog{}, false, err
	}
	anomaly, err := GetAnomalyByID(db, id)
	return anomaly, true, err
}

// ResolveAnomaly marks the anomaly resolved. Resolving an over-24h anomaly
// also closes its still-open linked entry with a synthesized clock-out;
// both writes commit together or not at all. Resolving an already-resolved
// anomaly is a no-op that returns the current state, so retries are safe.
func ResolveAnomaly(db *sql.DB, anomalyID, resolverID int64, notes string) (AnomalyLog, error) {
	tx, err := db.Begin()
	if err != nil {
		return AnomalyLog{}, err
	}
	defer tx.Rollback()

	anomaly, err := scanAnomaly(tx.QueryRow(`SELECT `+anomalyColumns+` FROM anomaly_logs WHERE id = ?`, anomalyID))
	if errors.Is(err, sql.ErrNoRows) {
		return AnomalyLog{}, fmt.Errorf("%w: anomaly %d", ErrNotFound, anomalyID)
	}
	if err != nil {
		return AnomalyLog{}, err
	}
	if anomaly.Resolved {
		return anomaly, nil
	}

	now := time.Now()
	if anomaly.Type == AnomalyOver24h && anomaly.TimeEntryID != nil {
		entry, err := scanTimeEntry(tx.QueryRow(
			`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, *anomaly.TimeEntryID))
		if err != nil {
			return AnomalyLog{}, fmt.Errorf("loading linked entry: %w", err)
		}
		if entry.ClockedOutAt == nil {
			duration := durationMinutesBetween(entry.ClockedInAt, now)
			note := fmt.Sprintf("Automatically clocked out while resolving over-24h anomaly #%d", anomalyID)
			_, err = tx.Exec(
				`UPDATE time_entries
				 SET clocked_out_at = ?, duration_minutes = ?, status = 'completed', notes = ?,
				     manually_corrected = 1, corrected_by_id = ?, corrected_at = ?
				 WHERE id = ?`,
				now, duration, appendNote(entry.Notes, note), resolverID, now, entry.ID,
			)
			if err != nil {
				return AnomalyLog{}, fmt.Errorf("auto-correcting linked entry: %w", err)
			}
		}
	}

	_, err = tx.Exec(
		`UPDATE anomaly_logs
		 SET resolved = 1, resolved_by_id = ?, resolved_at = ?, resolution_notes = ?
		 WHERE id = ?`,
		resolverID, now, notes, anomalyID,
	)
	if err != nil {
		return AnomalyLog{}, fmt.Errorf("resolving anomaly: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AnomalyLog{}, err
	}
	return GetAnomalyByID(db, anomalyID)
}

// UnresolveAnomaly reopens a resolved anomaly, clearing the resolution
// stamp. The linked entry is left as corrected; only the log reopens.
func UnresolveAnomaly(db *sql.DB, anomalyID int64) (AnomalyLog, error) {
	_, err := GetAnomalyByID(db, anomalyID)
	if errors.Is(err, sql.ErrNoRows) {
		return AnomalyLog{}, fmt.Errorf("%w: anomaly %d", ErrNotFound, anomalyID)
	}
	if err != nil {
		return AnomalyLog{}, err
	}
	_, err = db.Exec(
		`UPDATE anomaly_logs
		 SET resolved = 0, resolved_by_id = NULL, resolved_at = NULL, resolution_notes = ''
		 WHERE id = ? AND resolved = 1`,
		anomalyID,
	)
	if err != nil {
		return AnomalyLog{}, err
	}
	return GetAnomalyByID(db, anomalyID)
}

// siteLabel is best-effort: descriptions fall back to the raw ID when the
// site row is missing.
func siteLabel(db *sql.DB, siteID int64) string {
	site, err := GetSiteByID(db, siteID)
	if err != nil {
		return fmt.Sprintf("site %d", siteID)
	}
	return site.Name
}
