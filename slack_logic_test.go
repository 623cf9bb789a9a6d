package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseCorrectionArgs(t *testing.T) {
	t.Run("out and note", func(t *testing.T) {
		patch, note, err := parseCorrectionArgs([]string{"out=2026-03-02T17:30:00Z", "forgot", "to", "clock", "out"})
		if err != nil {
			t.Fatalf("parseCorrectionArgs failed: %v", err)
		}
		if patch.ClockedOutAt == nil || !patch.ClockedOutAt.Equal(time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)) {
			t.Fatalf("unexpected out: %v", patch.ClockedOutAt)
		}
		if note != "forgot to clock out" {
			t.Fatalf("unexpected note: %q", note)
		}
	})

	t.Run("in and status", func(t *testing.T) {
		patch, note, err := parseCorrectionArgs([]string{"in=2026-03-02T08:00:00Z", "status=completed"})
		if err != nil {
			t.Fatalf("parseCorrectionArgs failed: %v", err)
		}
		if patch.ClockedInAt == nil || patch.Status == nil || *patch.Status != EntryCompleted {
			t.Fatalf("unexpected patch: %+v", patch)
		}
		if note != "" {
			t.Fatalf("unexpected note: %q", note)
		}
	})

	t.Run("bad time", func(t *testing.T) {
		if _, _, err := parseCorrectionArgs([]string{"out=yesterday"}); err == nil {
			t.Fatal("expected error for bad time")
		}
	})

	t.Run("active status rejected", func(t *testing.T) {
		if _, _, err := parseCorrectionArgs([]string{"status=active"}); err == nil {
			t.Fatal("expected error for status=active")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		if _, _, err := parseCorrectionArgs([]string{"site=WN1"}); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})
}

func TestParseReportArgs(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice", "alice@example.com", RoleAgent)
	siteID := mustInsertSite(t, db, "Warehouse North", "WN1")
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to current month", func(t *testing.T) {
		typ, from, to, filters, err := parseReportArgs(db, "time_tracking", now)
		if err != nil {
			t.Fatalf("parseReportArgs failed: %v", err)
		}
		if typ != "time_tracking" {
			t.Fatalf("unexpected type: %q", typ)
		}
		if !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected period: %s - %s", from, to)
		}
		if filters.UserID != nil || filters.SiteID != nil || filters.Severity != "" {
			t.Fatalf("expected empty filters: %+v", filters)
		}
	})

	t.Run("explicit month and filters", func(t *testing.T) {
		typ, from, to, filters, err := parseReportArgs(db, "anomalies 2026-01 site=WN1 agent=alice@example.com severity=high", now)
		if err != nil {
			t.Fatalf("parseReportArgs failed: %v", err)
		}
		if typ != "anomalies" {
			t.Fatalf("unexpected type: %q", typ)
		}
		if !from.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected period: %s - %s", from, to)
		}
		if filters.SiteID == nil || *filters.SiteID != siteID {
			t.Fatalf("unexpected site filter: %+v", filters)
		}
		if filters.UserID == nil || *filters.UserID != alice {
			t.Fatalf("unexpected user filter: %+v", filters)
		}
		if filters.Severity != "high" {
			t.Fatalf("unexpected severity: %q", filters.Severity)
		}
	})

	for name, text := range map[string]string{
		"empty":            "",
		"unknown type":     "quarterly",
		"unknown site":     "time_tracking site=NOPE",
		"unknown agent":    "time_tracking agent=ghost@example.com",
		"bad severity":     "anomalies severity=extreme",
		"bad month":        "time_tracking March",
		"unknown filter":   "time_tracking team=alpha",
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, _, _, err := parseReportArgs(db, text, now); err == nil {
				t.Fatalf("expected error for %q", text)
			}
		})
	}
}

func TestParseSlackUserMention(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@U123ABC>", "U123ABC"},
		{"<@U123ABC|alice>", "U123ABC"},
		{"U123ABC", "U123ABC"},
		{"@U123ABC", "U123ABC"},
		{"W999", "W999"},
		{"alice", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseSlackUserMention(tt.in); got != tt.want {
			t.Fatalf("parseSlackUserMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSweepSummary(t *testing.T) {
	t.Run("quiet sweep", func(t *testing.T) {
		out := FormatSweepSummary(SweepResult{})
		if !strings.Contains(out, "no new anomalies") {
			t.Fatalf("unexpected summary: %q", out)
		}
	})

	t.Run("busy sweep", func(t *testing.T) {
		result := SweepResult{
			Over24h:            1,
			MissedClockOuts:    2,
			ScheduleMismatches: 1,
			SchedulesCompleted: 5,
			SchedulesMissed:    2,
			Deduplicated:       3,
			NewAnomalies:       make([]AnomalyLog, 4),
		}
		out := FormatSweepSummary(result)
		for _, want := range []string{"found 4 new", "1 over 24h", "2 missed clock-outs", "1 schedule mismatches", "5 completed, 2 missed", "3 already flagged"} {
			if !strings.Contains(out, want) {
				t.Fatalf("summary missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("warnings listed", func(t *testing.T) {
		out := FormatSweepSummary(SweepResult{Errors: []string{"entry 4: boom"}})
		if !strings.Contains(out, "Warnings:") || !strings.Contains(out, "entry 4: boom") {
			t.Fatalf("unexpected summary: %q", out)
		}
	})
}

func TestFormatAnomalyListing(t *testing.T) {
	db := newTestDB(t)
	alice := mustInsertUser(t, db, "Alice Agent", "alice@example.com", RoleAgent)

	entryID := int64(7)
	scheduleID := int64(12)
	anomalies := []AnomalyLog{
		{ID: 1, Type: AnomalyOver24h, Severity: SeverityHigh, UserID: &alice, TimeEntryID: &entryID, Description: "Entry active for more than 24 hours"},
		{ID: 2, Type: AnomalyMissedClockIn, Severity: SeverityLow, ScheduleID: &scheduleID, Description: "No clock-in recorded"},
	}
	out := formatAnomalyListing(db, anomalies)
	for _, want := range []string{"2 unresolved", "#1", "Active over 24h", "Alice Agent", "(entry 7)", "#2", "unknown agent", "(schedule 12)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("listing missing %q:\n%s", want, out)
		}
	}
}
