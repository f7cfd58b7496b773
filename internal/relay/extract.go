package relay

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// The monitored feed produces two disjoint grammars. Everything else is a
// normal "ignore" outcome, not an error.
const (
	newSlotsHeader  = "З'явились нові слоти!"
	exhaustedHeader = "Слоти закінчились"
)

var (
	reLocation = regexp.MustCompile(`🔸\s*(Генеральне Консульство України в .+|Посольство України в .+)`)
	reService  = regexp.MustCompile(`🔸\s*Послуга:\s*(.+)`)
	reDateHead = regexp.MustCompile(`Слоти які були опубліковані:\s*(\d{2}\.\d{2}\.\d{4}):`)
	reTime     = regexp.MustCompile(`\d{2}:\d{2}`)
	reAlive    = regexp.MustCompile(`Слоти були доступні:\s*(\d+)\s*(секунд|хвилин)`)
)

// locationPrefixes are the venue-type phrases stripped to leave the bare
// place name used as the correlation key.
var locationPrefixes = []string{
	"Генеральне Консульство України в ",
	"Посольство України в ",
}

// Extract parses one raw feed message into a tagged Result.
//
// A text matches the new-slots form only if a location phrase, a service
// phrase and at least one date block with at least one parseable time are
// all present.
func Extract(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Kind: KindUnrecognized}
	}
	if strings.Contains(text, exhaustedHeader) {
		return extractExhausted(text)
	}
	if !strings.Contains(text, newSlotsHeader) {
		return Result{Kind: KindUnrecognized}
	}

	location := matchLocation(text)
	service := matchGroup(reService, text)
	dates := extractDateBlocks(text)
	if location == "" || service == "" || len(dates) == 0 {
		return Result{Kind: KindUnrecognized}
	}

	return Result{
		Kind: KindNewSlots,
		Announcement: &Announcement{
			Location: location,
			Service:  service,
			Dates:    dates,
		},
	}
}

func extractExhausted(text string) Result {
	location := matchLocation(text)
	m := reAlive.FindStringSubmatch(text)
	if location == "" || m == nil {
		return Result{Kind: KindUnrecognized}
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return Result{Kind: KindUnrecognized}
	}
	alive := time.Duration(n) * time.Minute
	if m[2] == "секунд" {
		alive = time.Duration(n) * time.Second
	}

	return Result{
		Kind:       KindExhausted,
		Exhaustion: &Exhaustion{Location: location, Alive: alive},
	}
}

func matchLocation(text string) string {
	raw := matchGroup(reLocation, text)
	if raw == "" {
		return ""
	}
	for _, p := range locationPrefixes {
		if strings.HasPrefix(raw, p) {
			return strings.TrimSpace(strings.TrimPrefix(raw, p))
		}
	}
	return raw
}

func matchGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractDateBlocks collects every published date with its times. Each block
// carries its own "📅 Слоти які були опубліковані:" header, so splitting on
// the calendar marker isolates one date per segment. The warning/promo
// footers terminate a block.
func extractDateBlocks(text string) []DateBlock {
	segs := strings.Split(text, "📅")
	if len(segs) < 2 {
		return nil
	}

	var blocks []DateBlock
	for _, seg := range segs[1:] {
		m := reDateHead.FindStringSubmatchIndex(seg)
		if m == nil {
			continue
		}
		date := seg[m[2]:m[3]]
		rest := seg[m[1]:]
		for _, stop := range []string{"⚠️", "🔥"} {
			if i := strings.Index(rest, stop); i >= 0 {
				rest = rest[:i]
			}
		}

		times := parseTimes(rest)
		if len(times) == 0 {
			continue
		}
		blocks = append(blocks, DateBlock{
			Date:       date,
			Times:      times,
			ChildTimes: minGapSubset(times, childSlotLen),
		})
	}
	return blocks
}

// parseTimes extracts all HH:MM tokens, drops unparseable ones and returns
// the rest sorted ascending.
func parseTimes(s string) []string {
	raw := reTime.FindAllString(s, -1)
	if len(raw) == 0 {
		return nil
	}

	type tv struct {
		s string
		t time.Time
	}
	vals := make([]tv, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse("15:04", r)
		if err != nil {
			continue
		}
		vals = append(vals, tv{s: r, t: t})
	}
	if len(vals) == 0 {
		return nil
	}

	sort.SliceStable(vals, func(i, j int) bool { return vals[i].t.Before(vals[j].t) })
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.s
	}
	return out
}

// minGapSubset keeps the earliest time and every subsequent time that is at
// least gap after the last kept one. Greedy left-to-right, no backtracking;
// the booking system assigns child appointments exactly this way.
func minGapSubset(sorted []string, gap time.Duration) []string {
	if len(sorted) == 0 {
		return nil
	}

	out := []string{sorted[0]}
	last, err := time.Parse("15:04", sorted[0])
	if err != nil {
		return nil
	}
	for _, s := range sorted[1:] {
		t, err := time.Parse("15:04", s)
		if err != nil {
			continue
		}
		if t.Sub(last) >= gap {
			out = append(out, s)
			last = t
		}
	}
	return out
}
