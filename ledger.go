package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ClockIn opens a new active entry for the agent at the site. An agent can
// hold at most one active entry across all sites; the check is backed by a
// partial unique index, so two racing clock-ins cannot both commit.
func ClockIn(db *sql.DB, userID, siteID int64, ip, userAgent string) (TimeEntry, error) {
	existing, err := GetActiveEntryForUser(db, userID)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("checking active entry: %w", err)
	}
	if existing != nil {
		return TimeEntry{}, fmt.Errorf("%w: already clocked in at site %d since %s",
			ErrConflict, existing.SiteID, existing.ClockedInAt.Format("15:04"))
	}

	now := time.Now()
	res, err := db.Exec(
		`INSERT INTO time_entries (user_id, site_id, clocked_in_at, status, ip_address_in, user_agent_in)
		 VALUES (?, ?, ?, 'active', ?, ?)`,
		userID, siteID, now, ip, userAgent,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent clock-in.
			return TimeEntry{}, fmt.Errorf("%w: already clocked in", ErrConflict)
		}
		return TimeEntry{}, fmt.Errorf("creating time entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TimeEntry{}, err
	}
	return GetTimeEntryByID(db, id)
}

// ClockOut completes the agent's active entry at the given site. It is
// site-scoped on purpose: an agent active at a different site gets
// ErrNotFound here, not a cross-site clock-out.
func ClockOut(db *sql.DB, userID, siteID int64, ip, userAgent string) (TimeEntry, error) {
	entry, err := GetActiveEntryForUserAtSite(db, userID, siteID)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("finding active entry: %w", err)
	}
	if entry == nil {
		return TimeEntry{}, fmt.Errorf("%w: no active entry at this site", ErrNotFound)
	}

	now := time.Now()
	duration := durationMinutesBetween(entry.ClockedInAt, now)
	_, err = db.Exec(
		`UPDATE time_entries
		 SET clocked_out_at = ?, duration_minutes = ?, status = 'completed',
		     ip_address_out = ?, user_agent_out = ?
		 WHERE id = ?`,
		now, duration, ip, userAgent, entry.ID,
	)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("closing time entry: %w", err)
	}
	return GetTimeEntryByID(db, entry.ID)
}

// EntryPatch is a partial correction applied by a manager or admin. Nil
// fields are left untouched.
type EntryPatch struct {
	ClockedInAt  *time.Time
	ClockedOutAt *time.Time
	Status       *EntryStatus
	Notes        *string // appended to the existing notes
}

// CorrectEntry applies a manual correction. Every correction stamps the
// corrector and time regardless of which fields changed. Patches that would
// put the clock-out at or before the clock-in are rejected, as is reopening
// an entry by reverting its status to active.
func CorrectEntry(db *sql.DB, entryID, correctorID int64, patch EntryPatch) (TimeEntry, error) {
	entry, err := GetTimeEntryByID(db, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return TimeEntry{}, fmt.Errorf("%w: time entry %d", ErrNotFound, entryID)
	}
	if err != nil {
		return TimeEntry{}, err
	}

	in := entry.ClockedInAt
	if patch.ClockedInAt != nil {
		in = *patch.ClockedInAt
	}
	out := entry.ClockedOutAt
	if patch.ClockedOutAt != nil {
		out = patch.ClockedOutAt
	}
	if out != nil && !out.After(in) {
		return TimeEntry{}, fmt.Errorf("%w: clock-out must be after clock-in", ErrValidation)
	}

	status := entry.Status
	if patch.Status != nil {
		status = *patch.Status
	}
	if status == EntryActive && entry.Status != EntryActive {
		return TimeEntry{}, fmt.Errorf("%w: cannot revert a closed entry to active", ErrValidation)
	}
	if out != nil && status == EntryActive {
		status = EntryCompleted
	}

	var duration *int64
	if out != nil {
		d := durationMinutesBetween(in, *out)
		duration = &d
	}

	notes := entry.Notes
	if patch.Notes != nil {
		notes = appendNote(notes, *patch.Notes)
	}

	now := time.Now()
	_, err = db.Exec(
		`UPDATE time_entries
		 SET clocked_in_at = ?, clocked_out_at = ?, duration_minutes = ?, status = ?, notes = ?,
		     manually_corrected = 1, corrected_by_id = ?, corrected_at = ?
		 WHERE id = ?`,
		in, nullableTime(out), nullableInt(duration), string(status), notes, correctorID, now, entryID,
	)
	if err != nil {
		return TimeEntry{}, fmt.Errorf("correcting time entry: %w", err)
	}
	return GetTimeEntryByID(db, entryID)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
