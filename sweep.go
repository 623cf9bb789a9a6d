package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// FormatSweepSummary returns a human-readable summary of a SweepResult.
func FormatSweepSummary(result SweepResult) string {
	var parts []string
	if result.Over24h > 0 {
		parts = append(parts, fmt.Sprintf("%d over 24h", result.Over24h))
	}
	if result.MissedClockOuts > 0 {
		parts = append(parts, fmt.Sprintf("%d missed clock-outs", result.MissedClockOuts))
	}
	if result.MultipleActive > 0 {
		parts = append(parts, fmt.Sprintf("%d multiple-active", result.MultipleActive))
	}
	if result.ScheduleMismatches > 0 {
		parts = append(parts, fmt.Sprintf("%d schedule mismatches", result.ScheduleMismatches))
	}
	if result.MissedClockIns > 0 {
		parts = append(parts, fmt.Sprintf("%d missed clock-ins", result.MissedClockIns))
	}

	msg := "Anomaly sweep: no new anomalies"
	if len(parts) > 0 {
		msg = fmt.Sprintf("Anomaly sweep found %d new: %s", result.TotalNew(), strings.Join(parts, ", "))
	}
	if result.SchedulesCompleted > 0 || result.SchedulesMissed > 0 {
		msg += fmt.Sprintf(" (schedules: %d completed, %d missed)",
			result.SchedulesCompleted, result.SchedulesMissed)
	}
	if result.Deduplicated > 0 {
		msg += fmt.Sprintf(", %d already flagged", result.Deduplicated)
	}
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// StartSweepScheduler starts a cron-based scheduler that periodically runs
// the anomaly sweep and posts a summary to the alert channel.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 * * * *" (hourly), "30 6 * * *" (daily 06:30).
func StartSweepScheduler(cfg Config, db *sql.DB, api *slack.Client, notifier Notifier) {
	schedule := strings.TrimSpace(cfg.SweepSchedule)
	if schedule == "" {
		log.Println("Anomaly sweep disabled (sweep_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid sweep_schedule '%s': %v — sweep disabled", schedule, err)
		return
	}
	log.Printf("Anomaly sweep scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next anomaly sweep at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			result, sweepErr := RunAnomalySweep(db, time.Now().In(cfg.Location))
			summary := FormatSweepSummary(result)
			if sweepErr != nil {
				log.Printf("Anomaly sweep error: %v", sweepErr)
			}
			log.Printf("Anomaly sweep complete: %s", summary)

			if cfg.AlertChannelID != "" && result.TotalNew() > 0 {
				_, _, postErr := api.PostMessage(cfg.AlertChannelID, slack.MsgOptionText(summary, false))
				if postErr != nil {
					log.Printf("Sweep alert post error: %v", postErr)
				}
			}

			notifyNewAnomalies(db, notifier, result.NewAnomalies)
		}
	}()
}

// notifyNewAnomalies sends each affected agent a personal notice about
// anomalies raised against them. Delivery is best-effort.
func notifyNewAnomalies(db *sql.DB, notifier Notifier, anomalies []AnomalyLog) {
	if notifier == nil {
		return
	}
	for _, a := range anomalies {
		if a.UserID == nil {
			continue
		}
		user, err := GetUserByID(db, *a.UserID)
		if err != nil {
			log.Printf("sweep notify user=%d lookup error: %v", *a.UserID, err)
			continue
		}
		msg := fmt.Sprintf("Attendance anomaly recorded for you: %s. %s", a.Type.Label(), a.Description)
		if err := notifier.NotifyUser(user, msg); err != nil {
			log.Printf("sweep notify user=%d error: %v", user.ID, err)
		}
	}
}
