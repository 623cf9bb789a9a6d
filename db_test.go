package main

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "clockbot-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustInsertUser(t *testing.T, db *sql.DB, name, email string, role Role) int64 {
	t.Helper()
	id, err := InsertUser(db, User{
		FullName:    name,
		Email:       email,
		Role:        role,
		SlackUserID: "U-" + email,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("InsertUser(%s) failed: %v", email, err)
	}
	return id
}

func mustInsertSite(t *testing.T, db *sql.DB, name, code string) int64 {
	t.Helper()
	id, err := InsertSite(db, Site{
		Name:    name,
		Code:    code,
		QRToken: "qr-" + code,
		Active:  true,
	})
	if err != nil {
		t.Fatalf("InsertSite(%s) failed: %v", code, err)
	}
	return id
}

func TestInitDBAddsTelegramChatIDColumn(t *testing.T) {
	db := newTestDB(t)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'telegram_chat_id'`).Scan(&count); err != nil {
		t.Fatalf("query pragma_table_info failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected telegram_chat_id column to exist, count=%d", count)
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "clockbot-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("first InitDB failed: %v", err)
	}
	db.Close()

	db, err = InitDB(dbPath)
	if err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	db.Close()
}

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	id := mustInsertUser(t, db, "Alice Agent", "alice@example.com", RoleAgent)

	byID, err := GetUserByID(db, id)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.FullName != "Alice Agent" || byID.Role != RoleAgent || !byID.Active {
		t.Fatalf("unexpected user: %+v", byID)
	}

	bySlack, err := GetUserBySlackID(db, "U-alice@example.com")
	if err != nil {
		t.Fatalf("GetUserBySlackID failed: %v", err)
	}
	if bySlack.ID != id {
		t.Fatalf("expected id %d, got %d", id, bySlack.ID)
	}

	byEmail, err := GetUserByEmail(db, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != id {
		t.Fatalf("expected id %d, got %d", id, byEmail.ID)
	}

	if _, err := GetUserBySlackID(db, "U-nope"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetSiteByCodeOnlyActive(t *testing.T) {
	db := newTestDB(t)
	mustInsertSite(t, db, "Warehouse North", "WN1")
	if _, err := InsertSite(db, Site{Name: "Closed Depot", Code: "CD1", QRToken: "qr-CD1", Active: false}); err != nil {
		t.Fatalf("InsertSite failed: %v", err)
	}

	site, err := GetSiteByCode(db, "WN1")
	if err != nil {
		t.Fatalf("GetSiteByCode failed: %v", err)
	}
	if site.Name != "Warehouse North" {
		t.Fatalf("unexpected site: %+v", site)
	}

	if _, err := GetSiteByCode(db, "CD1"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows for inactive site, got %v", err)
	}
}

func TestHasApprovedAbsenceOn(t *testing.T) {
	db := newTestDB(t)
	userID := mustInsertUser(t, db, "Bob", "bob@example.com", RoleAgent)
	managerID := mustInsertUser(t, db, "Mara", "mara@example.com", RoleManager)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	end := time.Date(2026, 3, 6, 0, 0, 0, 0, time.Local)
	if _, err := InsertAbsence(db, Absence{
		UserID: userID, Type: AbsenceVacation, Status: AbsenceApproved,
		StartDate: start, EndDate: end, CreatedByID: managerID,
	}); err != nil {
		t.Fatalf("InsertAbsence failed: %v", err)
	}
	if _, err := InsertAbsence(db, Absence{
		UserID: userID, Type: AbsenceSick, Status: AbsencePending,
		StartDate: start.AddDate(0, 0, 10), EndDate: end.AddDate(0, 0, 10), CreatedByID: managerID,
	}); err != nil {
		t.Fatalf("InsertAbsence failed: %v", err)
	}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"inside range", time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local), true},
		{"first day", start, true},
		{"last day", end, true},
		{"before range", start.AddDate(0, 0, -1), false},
		{"after range", end.AddDate(0, 0, 1), false},
		{"pending absence does not count", start.AddDate(0, 0, 12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HasApprovedAbsenceOn(db, userID, tt.date)
			if err != nil {
				t.Fatalf("HasApprovedAbsenceOn failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("HasApprovedAbsenceOn(%s) = %v, want %v", tt.date.Format(dateLayout), got, tt.want)
			}
		})
	}
}

func TestReportRoundTripKeepsFilters(t *testing.T) {
	db := newTestDB(t)
	userID := mustInsertUser(t, db, "Mara", "mara@example.com", RoleManager)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	siteID := int64(7)
	r := Report{
		Title:         "March anomalies",
		ReportType:    "anomalies",
		PeriodStart:   from,
		PeriodEnd:     to,
		GeneratedAt:   time.Now().UTC(),
		GeneratedByID: &userID,
		Filters:       ReportFilters{SiteID: &siteID, Severity: "high"},
		Metrics:       ReportMetrics{TotalAnomalies: 3, ResolvedAnomalies: 1, UnresolvedAnomalies: 2},
	}
	id, err := InsertReport(db, r)
	if err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}

	got, err := GetReportByID(db, id)
	if err != nil {
		t.Fatalf("GetReportByID failed: %v", err)
	}
	if got.Filters.SiteID == nil || *got.Filters.SiteID != 7 {
		t.Fatalf("expected site filter 7, got %+v", got.Filters)
	}
	if got.Filters.Severity != "high" {
		t.Fatalf("expected severity filter high, got %q", got.Filters.Severity)
	}
	if got.Filters.UserID != nil {
		t.Fatalf("expected no user filter, got %+v", got.Filters)
	}
	if got.Metrics.UnresolvedAnomalies != 2 {
		t.Fatalf("expected 2 unresolved, got %d", got.Metrics.UnresolvedAnomalies)
	}
	if got.GeneratedByID == nil || *got.GeneratedByID != userID {
		t.Fatalf("expected generated_by %d, got %+v", userID, got.GeneratedByID)
	}
}
