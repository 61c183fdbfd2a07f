package textproc

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultWindowDays is applied when the question implies a window ("arriving
// soon") without naming a duration.
const DefaultWindowDays = 7

// DefaultWindowNotice is recorded whenever DefaultWindowDays is applied.
const DefaultWindowNotice = "No duration provided; using default window of 7 days."

var (
	nextDaysRe = regexp.MustCompile(`(?i)\b(?:next|within|in)\s+(\d{1,3})\s*days?\b`)
	pastDaysRe = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d{1,3})\s*days?\b`)
	betweenRe  = regexp.MustCompile(`(?i)\bbetween\s+(.+?)\s+and\s+(.+?)(?:$|[,?.])`)
	sinceRe    = regexp.MustCompile(`(?i)\b(?:since|after)\s+(.+?)(?:$|[,?.])`)
)

// parseTimeWindow resolves a time window mentioned in the question against
// the reference time. Returns a nil window when the question has none. The
// second return value is a notice explaining an applied default.
func parseTimeWindow(q string, now time.Time) (*TimeWindow, string) {
	if m := nextDaysRe.FindStringSubmatch(q); m != nil {
		days, _ := strconv.Atoi(m[1])
		return &TimeWindow{Start: now, End: now.AddDate(0, 0, days)}, ""
	}

	if m := pastDaysRe.FindStringSubmatch(q); m != nil {
		days, _ := strconv.Atoi(m[1])
		return &TimeWindow{Start: now.AddDate(0, 0, -days), End: now}, ""
	}

	if m := betweenRe.FindStringSubmatch(q); m != nil {
		start, okStart := parseDate(m[1], now)
		end, okEnd := parseDate(m[2], now)
		if okStart && okEnd && !end.Before(start) {
			return &TimeWindow{Start: start, End: end}, ""
		}
	}

	if m := sinceRe.FindStringSubmatch(q); m != nil {
		if start, ok := parseDate(m[1], now); ok {
			return &TimeWindow{Start: start, End: now}, ""
		}
	}

	qLow := strings.ToLower(q)
	for _, phrase := range []string{"arriving soon", "arrive soon", "coming soon"} {
		if strings.Contains(qLow, phrase) {
			return &TimeWindow{Start: now, End: now.AddDate(0, 0, DefaultWindowDays)},
				DefaultWindowNotice
		}
	}

	return nil, ""
}

// parseDate tries dateparse on the candidate phrase, anchored to the
// reference location. Returns false for anything that does not look like a
// date; callers fall through to other patterns.
func parseDate(candidate string, now time.Time) (time.Time, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return time.Time{}, false
	}
	parsed, err := dateparse.ParseIn(candidate, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
