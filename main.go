package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(outboundHTTPClient),
	)

	notifier, err := NewTelegramNotifier(cfg.TelegramBotToken, outboundHTTPClient)
	if err != nil {
		log.Fatalf("Failed to init Telegram notifier: %v", err)
	}

	StartSweepScheduler(cfg, db, api, notifier)
	StartClockOutReminder(cfg, db, api)
	StartDigestScheduler(cfg, db, api)

	log.Println("Starting ClockBot...")
	if err := StartClockBot(cfg, db, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
