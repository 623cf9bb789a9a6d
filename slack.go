package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

func StartClockBot(cfg Config, db *sql.DB, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, db, cfg, cmd)
			}
		}
	}()

	log.Println("Clock bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/clockin":
		handleClockIn(api, db, cmd)
	case "/clockout":
		handleClockOut(api, db, cmd)
	case "/whoson":
		handleWhosOn(api, db, cmd)
	case "/anomalies":
		handleAnomalies(api, db, cmd)
	case "/resolve":
		handleResolve(api, db, cmd)
	case "/correct":
		handleCorrect(api, db, cmd)
	case "/timereport":
		handleTimeReport(api, db, cfg, cmd)
	case "/register":
		handleRegister(api, db, cfg, cmd)
	case "/help":
		handleHelp(api, db, cmd)
	}
}

// callerUser maps the Slack user to an active account. The core trusts the
// identity established here; there is no second check below this layer.
func callerUser(db *sql.DB, cmd slack.SlashCommand) (User, error) {
	user, err := GetUserBySlackID(db, cmd.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("your Slack account is not linked to an agent profile, ask an admin to register you")
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up your profile: %v", err)
	}
	if !user.Active {
		return User{}, fmt.Errorf("your agent profile is deactivated")
	}
	return user, nil
}

func requireManager(db *sql.DB, cmd slack.SlashCommand) (User, error) {
	user, err := callerUser(db, cmd)
	if err != nil {
		return User{}, err
	}
	if !user.Role.CanManage() {
		return User{}, fmt.Errorf("sorry, only managers and admins can use this command")
	}
	return user, nil
}

func handleClockIn(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	user, err := callerUser(db, cmd)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	code := strings.TrimSpace(cmd.Text)
	if code == "" {
		postEphemeral(api, cmd, "Usage: /clockin <site-code>\nThe site code is printed under the QR poster at the entrance.")
		return
	}
	site, err := GetSiteByCode(db, code)
	if errors.Is(err, sql.ErrNoRows) {
		postEphemeral(api, cmd, fmt.Sprintf("Unknown or inactive site code '%s'.", code))
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error looking up site: %v", err))
		return
	}

	entry, err := ClockIn(db, user.ID, site.ID, "", "slack:"+cmd.UserID)
	if errors.Is(err, ErrConflict) {
		postEphemeral(api, cmd, fmt.Sprintf("You are already clocked in: %v", err))
		log.Printf("clockin conflict user=%s site=%s", cmd.UserID, code)
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error clocking in: %v", err))
		log.Printf("clockin error user=%s site=%s: %v", cmd.UserID, code, err)
		return
	}
	postEphemeral(api, cmd, fmt.Sprintf("Clocked in at %s at %s. Have a good shift!",
		site.Name, entry.ClockedInAt.Format("15:04")))
	log.Printf("clockin ok user=%s site=%s entry=%d", cmd.UserID, code, entry.ID)
}

func handleClockOut(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	user, err := callerUser(db, cmd)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	// Without an argument, clock out wherever the active entry is.
	code := strings.TrimSpace(cmd.Text)
	var siteID int64
	if code != "" {
		site, err := GetSiteByCode(db, code)
		if errors.Is(err, sql.ErrNoRows) {
			postEphemeral(api, cmd, fmt.Sprintf("Unknown or inactive site code '%s'.", code))
			return
		}
		if err != nil {
			postEphemeral(api, cmd, fmt.Sprintf("Error looking up site: %v", err))
			return
		}
		siteID = site.ID
	} else {
		active, err := GetActiveEntryForUser(db, user.ID)
		if err != nil {
			postEphemeral(api, cmd, fmt.Sprintf("Error finding your active entry: %v", err))
			return
		}
		if active == nil {
			postEphemeral(api, cmd, "You have no active entry to clock out of.")
			return
		}
		siteID = active.SiteID
	}

	entry, err := ClockOut(db, user.ID, siteID, "", "slack:"+cmd.UserID)
	if errors.Is(err, ErrNotFound) {
		postEphemeral(api, cmd, "You have no active entry at that site. Use /clockout without arguments to close your current entry.")
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error clocking out: %v", err))
		log.Printf("clockout error user=%s: %v", cmd.UserID, err)
		return
	}

	hours := float64(*entry.DurationMinutes) / 60.0
	postEphemeral(api, cmd, fmt.Sprintf("Clocked out at %s. Shift length: %.1f hours.",
		entry.ClockedOutAt.Format("15:04"), hours))
	log.Printf("clockout ok user=%s entry=%d minutes=%d", cmd.UserID, entry.ID, *entry.DurationMinutes)
}

func handleWhosOn(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	if _, err := requireManager(db, cmd); err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	code := strings.TrimSpace(cmd.Text)
	if code == "" {
		postEphemeral(api, cmd, "Usage: /whoson <site-code>")
		return
	}
	site, err := GetSiteByCode(db, code)
	if errors.Is(err, sql.ErrNoRows) {
		postEphemeral(api, cmd, fmt.Sprintf("Unknown or inactive site code '%s'.", code))
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error looking up site: %v", err))
		return
	}

	entries, err := GetActiveEntriesForSite(db, site.ID)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error listing active entries: %v", err))
		return
	}
	if len(entries) == 0 {
		postEphemeral(api, cmd, fmt.Sprintf("Nobody is currently clocked in at %s.", site.Name))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d on site at %s*\n", len(entries), site.Name)
	for _, e := range entries {
		name := fmt.Sprintf("user %d", e.UserID)
		if u, err := GetUserByID(db, e.UserID); err == nil {
			name = u.FullName
		}
		fmt.Fprintf(&b, "• %s since %s\n", name, e.ClockedInAt.Format("15:04"))
	}
	postEphemeral(api, cmd, strings.TrimRight(b.String(), "\n"))
}

func handleAnomalies(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	if _, err := requireManager(db, cmd); err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	onlyUnresolved := strings.TrimSpace(cmd.Text) != "all"
	anomalies, err := ListAnomalies(db, onlyUnresolved, 20)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error listing anomalies: %v", err))
		return
	}
	if len(anomalies) == 0 {
		if onlyUnresolved {
			postEphemeral(api, cmd, "No unresolved anomalies. Use `/anomalies all` to include resolved ones.")
		} else {
			postEphemeral(api, cmd, "No anomalies recorded.")
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Latest %d anomalies*\n", len(anomalies))
	for _, a := range anomalies {
		state := "open"
		if a.Resolved {
			state = "resolved"
		}
		fmt.Fprintf(&b, "• #%d [%s/%s] %s — %s\n", a.ID, a.Type.Label(), a.Severity, state, a.Description)
	}
	b.WriteString("\nResolve with `/resolve <id> <notes>`.")
	postEphemeral(api, cmd, b.String())
}

func handleResolve(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	manager, err := requireManager(db, cmd)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) == 0 {
		postEphemeral(api, cmd, "Usage: /resolve <anomaly-id> <resolution notes>")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("'%s' is not an anomaly ID.", fields[0]))
		return
	}
	notes := strings.TrimSpace(strings.TrimPrefix(cmd.Text, fields[0]))

	anomaly, err := ResolveAnomaly(db, id, manager.ID, notes)
	if errors.Is(err, ErrNotFound) {
		postEphemeral(api, cmd, fmt.Sprintf("No anomaly #%d.", id))
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error resolving anomaly: %v", err))
		log.Printf("resolve error user=%s anomaly=%d: %v", cmd.UserID, id, err)
		return
	}

	msg := fmt.Sprintf("Anomaly #%d (%s) resolved.", anomaly.ID, anomaly.Type.Label())
	if anomaly.Type == AnomalyOver24h && anomaly.TimeEntryID != nil {
		msg += fmt.Sprintf(" Linked entry %d was closed automatically if it was still open.", *anomaly.TimeEntryID)
	}
	postEphemeral(api, cmd, msg)
	log.Printf("resolve ok user=%s anomaly=%d", cmd.UserID, id)
}

func handleCorrect(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	manager, err := requireManager(db, cmd)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) < 2 {
		postEphemeral(api, cmd, "Usage: /correct <entry-id> in=<RFC3339>|out=<RFC3339>|status=completed ... [free-text note]\n"+
			"Example: /correct 412 out=2026-03-02T17:30:00+01:00 forgot to clock out")
		return
	}
	entryID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("'%s' is not an entry ID.", fields[0]))
		return
	}

	patch, note, err := parseCorrectionArgs(fields[1:])
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}
	if note != "" {
		patch.Notes = &note
	}

	entry, err := CorrectEntry(db, entryID, manager.ID, patch)
	if errors.Is(err, ErrNotFound) {
		postEphemeral(api, cmd, fmt.Sprintf("No time entry %d.", entryID))
		return
	}
	if errors.Is(err, ErrValidation) {
		postEphemeral(api, cmd, fmt.Sprintf("Invalid correction: %v", err))
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error correcting entry: %v", err))
		log.Printf("correct error user=%s entry=%d: %v", cmd.UserID, entryID, err)
		return
	}

	msg := fmt.Sprintf("Entry %d corrected (status: %s", entry.ID, entry.Status)
	if entry.DurationMinutes != nil {
		msg += fmt.Sprintf(", %.1f hours", float64(*entry.DurationMinutes)/60.0)
	}
	msg += ")."
	postEphemeral(api, cmd, msg)
	log.Printf("correct ok user=%s entry=%d", cmd.UserID, entryID)
}

// parseCorrectionArgs splits key=value tokens from trailing free text. The
// first token without '=' starts the note.
func parseCorrectionArgs(args []string) (EntryPatch, string, error) {
	var patch EntryPatch
	for i, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			return patch, strings.Join(args[i:], " "), nil
		}
		switch key {
		case "in":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return patch, "", fmt.Errorf("invalid in= time '%s': use RFC3339, e.g. 2026-03-02T08:00:00+01:00", value)
			}
			patch.ClockedInAt = &t
		case "out":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return patch, "", fmt.Errorf("invalid out= time '%s': use RFC3339, e.g. 2026-03-02T17:30:00+01:00", value)
			}
			patch.ClockedOutAt = &t
		case "status":
			switch EntryStatus(value) {
			case EntryCompleted, EntryAnomaly:
				s := EntryStatus(value)
				patch.Status = &s
			default:
				return patch, "", fmt.Errorf("invalid status '%s': use completed or anomaly", value)
			}
		default:
			return patch, "", fmt.Errorf("unknown field '%s': use in=, out= or status=", key)
		}
	}
	return patch, "", nil
}

func handleTimeReport(api *slack.Client, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	manager, err := requireManager(db, cmd)
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	reportType, from, to, filters, err := parseReportArgs(db, cmd.Text, time.Now().In(cfg.Location))
	if err != nil {
		postEphemeral(api, cmd, err.Error())
		return
	}

	report, err := GenerateReport(db, reportType, "", from, to, &manager.ID, filters)
	if errors.Is(err, ErrValidation) {
		postEphemeral(api, cmd, fmt.Sprintf("Invalid report request: %v", err))
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error generating report: %v", err))
		log.Printf("timereport error user=%s: %v", cmd.UserID, err)
		return
	}
	postEphemeral(api, cmd, FormatReportSummary(report))
	log.Printf("timereport ok user=%s type=%s report=%d", cmd.UserID, reportType, report.ID)
}

// parseReportArgs parses "<type> [YYYY-MM] [site=CODE] [agent=EMAIL]
// [severity=LEVEL]". The month defaults to the current one.
func parseReportArgs(db *sql.DB, text string, now time.Time) (string, time.Time, time.Time, ReportFilters, error) {
	var filters ReportFilters
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", time.Time{}, time.Time{}, filters, fmt.Errorf(
			"Usage: /timereport <%s> [YYYY-MM] [site=CODE] [agent=EMAIL] [severity=low|medium|high]",
			strings.Join(reportTypes, "|"))
	}

	reportType := fields[0]
	if !ValidReportType(reportType) {
		return "", time.Time{}, time.Time{}, filters, fmt.Errorf(
			"Unknown report type '%s'. Available: %s", reportType, strings.Join(reportTypes, ", "))
	}

	from, to := MonthRange(now.Year(), now.Month(), now.Location())
	for _, arg := range fields[1:] {
		if key, value, found := strings.Cut(arg, "="); found {
			switch key {
			case "site":
				site, err := GetSiteByCode(db, value)
				if err != nil {
					return "", time.Time{}, time.Time{}, filters, fmt.Errorf("Unknown site code '%s'.", value)
				}
				filters.SiteID = &site.ID
			case "agent":
				user, err := GetUserByEmail(db, value)
				if err != nil {
					return "", time.Time{}, time.Time{}, filters, fmt.Errorf("No agent with email '%s'.", value)
				}
				filters.UserID = &user.ID
			case "severity":
				switch Severity(value) {
				case SeverityLow, SeverityMedium, SeverityHigh:
					filters.Severity = value
				default:
					return "", time.Time{}, time.Time{}, filters, fmt.Errorf("Invalid severity '%s': use low, medium or high.", value)
				}
			default:
				return "", time.Time{}, time.Time{}, filters, fmt.Errorf("Unknown filter '%s': use site=, agent= or severity=.", key)
			}
			continue
		}
		month, err := time.ParseInLocation("2006-01", arg, now.Location())
		if err != nil {
			return "", time.Time{}, time.Time{}, filters, fmt.Errorf("'%s' is not a month (YYYY-MM) or a filter.", arg)
		}
		from, to = MonthRange(month.Year(), month.Month(), now.Location())
	}
	return reportType, from, to, filters, nil
}

// handleRegister links a Slack account to an agent profile, creating the
// profile when the email is new. Allowed for admins; the config admin list
// lets the very first admin register themselves on a fresh install.
func handleRegister(api *slack.Client, db *sql.DB, cfg Config, cmd slack.SlashCommand) {
	if !cfg.IsAdminSlackID(cmd.UserID) {
		caller, err := callerUser(db, cmd)
		if err != nil || caller.Role != RoleAdmin {
			postEphemeral(api, cmd, "Sorry, only admins can register users.")
			return
		}
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) < 3 {
		postEphemeral(api, cmd, "Usage: /register <@user> <email> <agent|manager|admin> [full name]\n"+
			"Example: /register @alice alice@example.com agent Alice Martin")
		return
	}
	slackID := parseSlackUserMention(fields[0])
	if slackID == "" {
		postEphemeral(api, cmd, fmt.Sprintf("'%s' is not a Slack user mention.", fields[0]))
		return
	}
	email := fields[1]
	role := Role(fields[2])
	switch role {
	case RoleAdmin, RoleManager, RoleAgent:
	default:
		postEphemeral(api, cmd, fmt.Sprintf("Invalid role '%s': use agent, manager or admin.", fields[2]))
		return
	}
	name := strings.Join(fields[3:], " ")
	if name == "" {
		name = email
		if info, err := api.GetUserInfo(slackID); err == nil && info.RealName != "" {
			name = info.RealName
		}
	}

	existing, err := GetUserByEmail(db, email)
	if err == nil {
		if err := SetUserSlackID(db, existing.ID, slackID); err != nil {
			postEphemeral(api, cmd, fmt.Sprintf("Error linking profile: %v", err))
			return
		}
		postEphemeral(api, cmd, fmt.Sprintf("Linked <@%s> to existing profile %s (%s).", slackID, existing.FullName, email))
		log.Printf("register relink user=%s email=%s by=%s", slackID, email, cmd.UserID)
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		postEphemeral(api, cmd, fmt.Sprintf("Error looking up profile: %v", err))
		return
	}

	id, err := InsertUser(db, User{
		FullName:    name,
		Email:       email,
		Role:        role,
		SlackUserID: slackID,
		Active:      true,
	})
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error creating profile: %v", err))
		log.Printf("register insert error email=%s: %v", email, err)
		return
	}
	postEphemeral(api, cmd, fmt.Sprintf("Registered %s (%s) as %s, linked to <@%s>.", name, email, role, slackID))
	log.Printf("register ok user=%d slack=%s role=%s by=%s", id, slackID, role, cmd.UserID)
}

// parseSlackUserMention accepts the escaped form <@U123|name>, <@U123>, a
// bare @handle-free ID, and returns the user ID or "".
func parseSlackUserMention(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = s[2 : len(s)-1]
		if i := strings.IndexByte(s, '|'); i >= 0 {
			s = s[:i]
		}
		return s
	}
	s = strings.TrimPrefix(s, "@")
	if s != "" && (s[0] == 'U' || s[0] == 'W') {
		return s
	}
	return ""
}

func handleHelp(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	lines := []string{
		"*ClockBot Commands*",
		"",
		"`/clockin <site-code>` — Clock in at a site (code is printed under the QR poster).",
		"`/clockout [site-code]` — Clock out; without a code, closes your current entry.",
		"`/help` — Show this help.",
	}

	user, err := callerUser(db, cmd)
	if err == nil && user.Role.CanManage() {
		lines = append(lines,
			"",
			"*Manager commands*",
			"`/whoson <site-code>` — Who is currently on a site.",
			"`/anomalies [all]` — Latest anomalies, unresolved by default.",
			"`/resolve <id> <notes>` — Resolve an anomaly (over-24h also closes the entry).",
			"`/correct <entry-id> in=|out=|status= [note]` — Correct a time entry.",
			fmt.Sprintf("`/timereport <%s> [YYYY-MM] [site=] [agent=] [severity=]` — On-demand report.",
				strings.Join(reportTypes, "|")),
		)
		if user.Role == RoleAdmin {
			lines = append(lines, "`/register <@user> <email> <role> [name]` — Link a Slack account to a profile.")
		}
	}
	postEphemeral(api, cmd, strings.Join(lines, "\n"))
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	_, err := api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
