package relay

import (
	"fmt"
	"math"
	"strings"
)

// Channel rendering uses Telegram HTML parse mode.

// FormatAnnouncement renders the channel post for an admitted announcement:
// header with the venue, the service, per-date slot lists and, when there is
// enough material, the per-tier eligibility breakdown.
func FormatAnnouncement(a *Announcement) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>🟢 Доступні слоти в <u>%s</u>!</b>\n\n", a.Location)
	fmt.Fprintf(&b, "<b>📌 Послуга:</b> %s\n", a.Service)

	for _, d := range a.Dates {
		fmt.Fprintf(&b, "\n📆 <b>%s</b>: <code>%s</code>", d.Date, strings.Join(d.Times, ", "))
	}
	b.WriteString("\n")

	if a.SlotCount() > 2 {
		b.WriteString("\n📊 <b>Доступні записи за послугами:</b>\n")
		writeTier(&b, "Паспорт дорослому", "10 хв", a.Dates, allTimes)
		writeTier(&b, "Паспорт дитині 12-16 років", "10 хв", a.Dates, allTimes)
		writeTier(&b, "Паспорт дитині до 12 років", "15 хв", a.Dates, childTimes)
	}

	b.WriteString("\n⚡ <i>Не барися — розбирають швидко!</i>\n\n")
	b.WriteString(hashtags(a))

	return b.String()
}

func allTimes(d DateBlock) []string   { return d.Times }
func childTimes(d DateBlock) []string { return d.ChildTimes }

func writeTier(b *strings.Builder, name, dur string, dates []DateBlock, pick func(DateBlock) []string) {
	var lines []string
	for _, d := range dates {
		times := pick(d)
		if len(times) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("   • %s: %s", d.Date, strings.Join(times, ", ")))
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n🔹 <b>%s</b> (%s):\n", name, dur)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func hashtags(a *Announcement) string {
	svc := strings.ToLower(a.Service)
	if i := strings.IndexByte(svc, ' '); i > 0 {
		svc = svc[:i]
	}
	dates := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		dates[i] = strings.ReplaceAll(d.Date, ".", "_")
	}
	return fmt.Sprintf("#слоти #%s #%s #%s",
		svc,
		strings.ReplaceAll(a.Location, " ", "_"),
		strings.Join(dates, "/"))
}

// FormatExhausted renders the close-out text: the slots are gone, and how
// long they lasted.
func FormatExhausted(a *Announcement, ex Exhaustion) string {
	return fmt.Sprintf(
		"<b>🔴 Слоти в <u>%s</u> розібрали</b>\n\n<b>📌 Послуга:</b> %s\n\n⏱ Були доступні: %d хв",
		a.Location, a.Service, aliveMinutes(ex))
}

// aliveMinutes normalizes the feed's seconds/minutes wording to whole
// minutes, rounding up so "40 секунд" reads as 1 хв, not 0.
func aliveMinutes(ex Exhaustion) int {
	m := int(math.Ceil(ex.Alive.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

// FormatPredictive renders the low-priority heads-up sent ahead of a
// statistically likely hour.
func FormatPredictive(hour int, locations []string) string {
	return fmt.Sprintf(
		"🔔 <i>За статистикою, близько %02d:00 можлива поява нових слотів.</i>\n🏙 Найактивніші міста: %s",
		hour, strings.Join(locations, ", "))
}
