package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"
)

// StartClockOutReminder schedules a daily DM to every agent who still has an
// open entry at the configured reminder time. Forgotten clock-outs caught the
// same evening never become next morning's anomalies.
func StartClockOutReminder(cfg Config, db *sql.DB, api *slack.Client) {
	hour, min, err := parseClock(cfg.ReminderTime)
	if err != nil {
		log.Printf("Invalid reminder_time '%s': %v, using 18:00", cfg.ReminderTime, err)
		hour, min = 18, 0
	}

	log.Printf("Clock-out reminder scheduled daily at %02d:%02d", hour, min)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := nextDailyAt(now, hour, min)
			wait := next.Sub(now)
			log.Printf("Next clock-out reminder at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)
			sendClockOutReminders(db, api)
		}
	}()
}

func nextDailyAt(now time.Time, hour, min int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if now.Before(target) {
		return target
	}
	return target.AddDate(0, 0, 1)
}

func sendClockOutReminders(db *sql.DB, api *slack.Client) {
	entries, err := GetOpenEntries(db)
	if err != nil {
		log.Printf("Error listing open entries for reminders: %v", err)
		return
	}

	// One DM per user even when several entries are open.
	reminded := make(map[int64]bool)
	for _, entry := range entries {
		if reminded[entry.UserID] {
			continue
		}
		reminded[entry.UserID] = true

		user, err := GetUserByID(db, entry.UserID)
		if err != nil {
			log.Printf("Error loading user %d for reminder: %v", entry.UserID, err)
			continue
		}
		if user.SlackUserID == "" {
			continue
		}

		site, err := GetSiteByID(db, entry.SiteID)
		siteName := fmt.Sprintf("site %d", entry.SiteID)
		if err == nil {
			siteName = site.Name
		}
		msg := fmt.Sprintf(
			"Hey! You clocked in at %s at %s and haven't clocked out yet. "+
				"If your shift is over, run `/clockout` so your hours are recorded correctly.",
			siteName, entry.ClockedInAt.Format("15:04"))

		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{user.SlackUserID},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", user.SlackUserID, err)
			continue
		}

		_, _, err = api.PostMessage(channel.ID, slack.MsgOptionText(msg, false))
		if err != nil {
			log.Printf("Error sending reminder to %s: %v", user.SlackUserID, err)
		} else {
			log.Printf("Sent clock-out reminder to %s", user.SlackUserID)
		}
	}
}
