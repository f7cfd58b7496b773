package relay

import (
	"encoding/hex"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"time"
)

// Fingerprint derives the canonical content key for an announcement.
//
// Dates and times are sorted before hashing, so two announcements carrying
// the same (location, service, slot set) fingerprint identically no matter
// how the source text ordered or formatted them. Extraction has already
// normalized the fields themselves.
func Fingerprint(location, service string, dates []DateBlock) string {
	sorted := make([]DateBlock, len(dates))
	copy(sorted, dates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dateKey(sorted[i].Date).Before(dateKey(sorted[j].Date))
	})

	var b strings.Builder
	b.WriteString(location)
	b.WriteByte('_')
	b.WriteString(service)
	for _, d := range sorted {
		times := make([]string, len(d.Times))
		copy(times, d.Times)
		// HH:MM is zero-padded, so lexicographic order is chronological.
		sort.Strings(times)

		b.WriteByte('_')
		b.WriteString(d.Date)
		b.WriteByte(':')
		b.WriteString(strings.Join(times, ","))
	}

	h := fnv.New128a()
	_, _ = io.WriteString(h, b.String())
	return hex.EncodeToString(h.Sum(nil))
}

func dateKey(s string) time.Time {
	t, err := time.Parse("02.01.2006", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
