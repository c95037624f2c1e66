package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"reminder-bot/internal/model"
)

const (
	dateTimeLayout = "15:04 02.01.2006"
	timeLayout     = "15:04"
)

// FormatDelivery renders the message sent when a reminder fires. The result
// is plain text.
func FormatDelivery(loc *time.Location) func(model.Reminder) string {
	return func(r model.Reminder) string {
		local := r.RemindAt.In(loc)
		return fmt.Sprintf("🔔 Напоминание: %s\n🕒 %s (%s)\n🆔 #%d",
			r.Text, local.Format(dateTimeLayout), zoneLabel(local), r.ID)
	}
}

// formatList renders the /list reply in HTML.
func formatList(reminders []model.Reminder, loc *time.Location) string {
	if len(reminders) == 0 {
		return "📭 У тебя нет активных напоминаний."
	}
	var sb strings.Builder
	sb.WriteString("📋 Твои напоминания:\n\n")
	for _, r := range reminders {
		sb.WriteString(fmt.Sprintf("🔔 %d. %s — 🕒 %s\n", r.ID, escape(r.Text), r.RemindAt.In(loc).Format(dateTimeLayout)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatCreated(text string, at time.Time, loc *time.Location) string {
	local := at.In(loc)
	return fmt.Sprintf("✅ Готово! Напомню: %s в %s (%s).",
		escape(strings.ToLower(text)), local.Format(dateTimeLayout), zoneLabel(local))
}

func zoneLabel(t time.Time) string {
	name, _ := t.Zone()
	if name == "" || strings.ContainsAny(name, "+-") {
		return t.Format("UTC-07:00")
	}
	return name
}

func shortText(text string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
