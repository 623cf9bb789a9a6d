package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// BuildAnomalyDigest summarizes the unresolved anomalies created since the
// given time. With an API key configured the summary is written by the model;
// without one it falls back to a deterministic listing, so the digest always
// goes out.
func BuildAnomalyDigest(cfg Config, db *sql.DB, since time.Time) (string, error) {
	anomalies, err := ListUnresolvedAnomaliesSince(db, since)
	if err != nil {
		return "", fmt.Errorf("listing anomalies for digest: %w", err)
	}
	if len(anomalies) == 0 {
		return "No unresolved attendance anomalies since " + since.Format(dateLayout) + ".", nil
	}

	listing := formatAnomalyListing(db, anomalies)
	if cfg.AnthropicAPIKey == "" {
		return listing, nil
	}

	summary, err := summarizeWithAnthropic(cfg, anomalies, listing)
	if err != nil {
		log.Printf("digest llm error, falling back to plain listing: %v", err)
		return listing, nil
	}
	return summary, nil
}

func formatAnomalyListing(db *sql.DB, anomalies []AnomalyLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d unresolved attendance anomalies*\n", len(anomalies))
	for _, a := range anomalies {
		who := "unknown agent"
		if a.UserID != nil {
			if user, err := GetUserByID(db, *a.UserID); err == nil {
				who = user.FullName
			}
		}
		ref := ""
		if a.Type.EntryLinked() {
			if a.TimeEntryID != nil {
				ref = fmt.Sprintf(" (entry %d)", *a.TimeEntryID)
			}
		} else if a.ScheduleID != nil {
			ref = fmt.Sprintf(" (schedule %d)", *a.ScheduleID)
		}
		fmt.Fprintf(&b, "- #%d [%s/%s] %s: %s%s\n", a.ID, a.Type.Label(), a.Severity, who, a.Description, ref)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizeWithAnthropic(cfg Config, anomalies []AnomalyLog, listing string) (string, error) {
	model := cfg.LLMModel
	if model == "" {
		model = defaultAnthropicModel
	}

	systemPrompt := `You write short operational digests for a workforce attendance team.
Given a list of unresolved attendance anomalies, write a summary for the managers:
- open with one sentence giving the overall picture
- group repeated problems (same agent or same type) instead of listing each one
- call out high-severity items explicitly
- end with the single most useful action for this week
Keep it under 150 words. Plain text, no markdown headers.`

	userPrompt := "Unresolved anomalies:\n" + listing

	log.Printf("digest llm model=%s anomalies=%d", model, len(anomalies))
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("digest llm response size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

// StartDigestScheduler posts the anomaly digest to the alert channel on a
// cron schedule, covering the window since the previous run.
func StartDigestScheduler(cfg Config, db *sql.DB, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" {
		log.Println("Anomaly digest disabled (digest_schedule not set)")
		return
	}
	if cfg.AlertChannelID == "" {
		log.Println("Anomaly digest disabled: alert_channel_id not set")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v — digest disabled", schedule, err)
		return
	}
	log.Printf("Anomaly digest scheduled (cron: %s)", schedule)

	go func() {
		last := time.Now().In(cfg.Location)
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next anomaly digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			since := last
			last = time.Now().In(cfg.Location)
			digest, err := BuildAnomalyDigest(cfg, db, since)
			if err != nil {
				log.Printf("Anomaly digest error: %v", err)
				continue
			}
			_, _, postErr := api.PostMessage(cfg.AlertChannelID, slack.MsgOptionText(digest, false))
			if postErr != nil {
				log.Printf("Anomaly digest post error: %v", postErr)
			}
		}
	}()
}
