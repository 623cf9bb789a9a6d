package main

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackAppToken  string `yaml:"slack_app_token"`
	AlertChannelID string `yaml:"alert_channel_id"`

	TelegramBotToken string `yaml:"telegram_bot_token"`

	DBPath   string `yaml:"db_path"`
	Timezone string `yaml:"timezone"`

	SweepSchedule  string `yaml:"sweep_schedule"`
	ReminderTime   string `yaml:"reminder_time"`
	DigestSchedule string `yaml:"digest_schedule"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	AdminSlackIDs []string `yaml:"admins"`

	// Location is resolved from Timezone during LoadConfig.
	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.AlertChannelID, "ALERT_CHANNEL_ID")
	envOverride(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverride(&cfg.ReminderTime, "REMINDER_TIME")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")

	if ids := os.Getenv("ADMINS"); ids != "" {
		cfg.AdminSlackIDs = nil
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.AdminSlackIDs = append(cfg.AdminSlackIDs, id)
			}
		}
	}

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./clockbot.db"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "0 * * * *"
	}
	if cfg.ReminderTime == "" {
		cfg.ReminderTime = "18:00"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-5-20250929"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
		time.Local = loc
	}

	if _, _, err := parseClock(cfg.ReminderTime); err != nil {
		log.Fatalf("invalid reminder_time '%s': %v", cfg.ReminderTime, err)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// IsAdminSlackID reports whether the Slack user is in the bootstrap admin
// list. Role checks normally go through the users table; this list only
// exists so a fresh install has someone who can run /register commands.
func (c Config) IsAdminSlackID(slackUserID string) bool {
	for _, id := range c.AdminSlackIDs {
		if id == slackUserID {
			return true
		}
	}
	return false
}
