package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSchedule validates and stores a planned shift. End must be after
// start, and the agent may not hold two overlapping shifts on the same date.
func CreateSchedule(db *sql.DB, s Schedule) (Schedule, error) {
	start, err := normalizeClock(s.StartTime)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: invalid start time %q: %v", ErrValidation, s.StartTime, err)
	}
	end, err := normalizeClock(s.EndTime)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: invalid end time %q: %v", ErrValidation, s.EndTime, err)
	}
	if end <= start {
		return Schedule{}, fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}

	overlap, err := HasOverlappingSchedule(db, s.UserID, s.ScheduledDate, start, end, 0)
	if err != nil {
		return Schedule{}, fmt.Errorf("checking overlap: %w", err)
	}
	if overlap {
		return Schedule{}, fmt.Errorf("%w: user already has an overlapping schedule on %s",
			ErrValidation, s.ScheduledDate.Format(dateLayout))
	}

	s.StartTime = start
	s.EndTime = end
	if s.Status == "" {
		s.Status = ScheduleScheduled
	}
	id, err := InsertSchedule(db, s)
	if err != nil {
		return Schedule{}, fmt.Errorf("creating schedule: %w", err)
	}
	return GetScheduleByID(db, id)
}

// CheckScheduleCompletion looks for a time entry matching the schedule's
// user, site, and date. When one exists and the schedule is still
// 'scheduled', the schedule transitions to completed. Returns whether a
// matching entry was found; a false return leaves it to the caller (the
// sweep) to mark the shift missed.
func CheckScheduleCompletion(db *sql.DB, scheduleID int64) (bool, error) {
	s, err := GetScheduleByID(db, scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: schedule %d", ErrNotFound, scheduleID)
	}
	if err != nil {
		return false, err
	}

	from, to := DayRange(s.ScheduledDate)
	exists, err := EntryExistsForUserSiteBetween(db, s.UserID, s.SiteID, from, to)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if s.Status == ScheduleScheduled {
		if _, err := updateScheduleStatusIfScheduled(db, scheduleID, ScheduleCompleted); err != nil {
			return false, err
		}
	}
	return true, nil
}

// MarkScheduleMissed transitions a schedule to missed. It is a guarded
// no-op when the schedule has already left the 'scheduled' state.
func MarkScheduleMissed(db *sql.DB, scheduleID int64) error {
	_, err := updateScheduleStatusIfScheduled(db, scheduleID, ScheduleMissed)
	return err
}

// MarkScheduleCompleted transitions a schedule to completed, same guard.
func MarkScheduleCompleted(db *sql.DB, scheduleID int64) error {
	_, err := updateScheduleStatusIfScheduled(db, scheduleID, ScheduleCompleted)
	return err
}

// AssignReplacement records a stand-in agent for the shift. The schedule's
// status and original assignee stay untouched, and the replacement's own
// calendar is not conflict-checked here.
func AssignReplacement(db *sql.DB, scheduleID, replacementUserID int64, reason string) (Schedule, error) {
	if _, err := GetScheduleByID(db, scheduleID); errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, fmt.Errorf("%w: schedule %d", ErrNotFound, scheduleID)
	} else if err != nil {
		return Schedule{}, err
	}
	if _, err := GetUserByID(db, replacementUserID); errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, fmt.Errorf("%w: user %d", ErrNotFound, replacementUserID)
	} else if err != nil {
		return Schedule{}, err
	}
	if err := SetScheduleReplacement(db, scheduleID, replacementUserID, reason); err != nil {
		return Schedule{}, fmt.Errorf("assigning replacement: %w", err)
	}
	return GetScheduleByID(db, scheduleID)
}

// ScheduleDurationHours is the planned shift length in hours.
func ScheduleDurationHours(s Schedule) float64 {
	sh, sm, err := parseClock(s.StartTime)
	if err != nil {
		return 0
	}
	eh, em, err := parseClock(s.EndTime)
	if err != nil {
		return 0
	}
	return (time.Duration(eh-sh)*time.Hour + time.Duration(em-sm)*time.Minute).Hours()
}
