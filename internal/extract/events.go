package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"newsroom/internal/core"
)

// Event extraction favors precision over recall: a candidate date must be
// backed by a calendar cue, a time cue, and an event keyword inside a
// bounded context window before it is emitted.

var (
	weekdayRe = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday|Mon|Tue|Wed|Thu|Fri|Sat|Sun)\b`)
	monthRe   = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan\.?|Feb\.?|Mar\.?|Apr\.?|Jun\.?|Jul\.?|Aug\.?|Sep\.?|Sept\.?|Oct\.?|Nov\.?|Dec\.?)\b`)
	numericRe = regexp.MustCompile(`\b(0?[1-9]|1[0-2])/(0?[1-9]|[12][0-9]|3[01])/(20\d{2})\b`)
	timeRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s?(am|pm|a\.m\.|p\.m\.)`)
	atFromRe  = regexp.MustCompile(`(?i)\b(at|from)\b`)
	moneyRe   = regexp.MustCompile(`\$\s?\d`)

	locationRe         = regexp.MustCompile(`(?i)\b(?:at|in|inside|outside|on)\s+([A-Za-z][^.,;\n]{2,80})`)
	locationFallbackAt = regexp.MustCompile(`(?i)\bat\s+([^.,;\n]{3,80})`)
	locationFallbackIn = regexp.MustCompile(`(?i)\bin\s+([^.,;\n]{3,80})`)
	locationTrailerRe  = regexp.MustCompile(`(?i)\s+(and|with|for|featuring)\b.*$`)

	// Closed keyword set; duplicated alternatives from earlier revisions
	// are collapsed.
	eventKeywordRe = regexp.MustCompile(`(?i)\b(meeting|meet|festival|concert|workshop|class|clinic|seminar|webinar|ceremony|parade|game|match|tournament|` +
		`celebration|fundraiser|luncheon|banquet|conference|summit|service|gala|open house|open-house|` +
		`kickoff|cook-?off|trail|race|5k|10k|run|walk|tour|dance|performance|play|screening|market|fair|` +
		`forum|panel|hearing|camp|drive|lecture|symposium|training)\b`)

	monthDayRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan\.?|Feb\.?|Mar\.?|Apr\.?|Jun\.?|Jul\.?|Aug\.?|Sep\.?|Sept\.?|Oct\.?|Nov\.?|Dec\.?)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(20\d{2}))?\b`)
)

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdayNumbers = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

const (
	contextWindow  = 160
	maxContextLen  = 220
	maxEventsPer   = 5
	futureCapDays  = 180
	pastGraceHours = 24
)

// dateCandidate is one dated snippet found in the text.
type dateCandidate struct {
	snippet string
	index   int
	when    time.Time
}

// ExtractEvents scans article text for candidate events, biased toward
// future dates. Each candidate must pass the conjunction of signals over
// its context window; results are capped at five per article.
func ExtractEvents(text string, now time.Time) []core.Event {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "key points:") {
		return nil
	}

	candidates := scanDates(text, now)
	if len(candidates) == 0 {
		return nil
	}

	futureLimit := now.AddDate(0, 0, futureCapDays)
	pastLimit := now.Add(-pastGraceHours * time.Hour)

	var events []core.Event
	seen := map[string]bool{}

	for _, cand := range candidates {
		dt := cand.when
		if dt.Year() < 2000 || dt.Year() > 2050 {
			continue
		}
		if dt.After(futureLimit) || dt.Before(pastLimit) {
			continue
		}

		ctx := extractContext(text, cand.snippet, cand.index)
		if ctx == "" {
			continue
		}

		// Attach a time of day mentioned near the date.
		if h, m, ok := findTimeOfDay(ctx); ok && dt.Hour() == 0 && dt.Minute() == 0 {
			dt = time.Date(dt.Year(), dt.Month(), dt.Day(), h, m, 0, 0, dt.Location())
			if dt.After(futureLimit) || dt.Before(pastLimit) {
				continue
			}
		}

		lower := strings.ToLower(ctx)
		tooLong := len(ctx) > maxContextLen
		hasCalendarCue := weekdayRe.MatchString(ctx) || monthRe.MatchString(ctx) || numericRe.MatchString(ctx)
		hasTimeCue := timeRe.MatchString(ctx) || atFromRe.MatchString(ctx)
		looksLikeBullets := strings.HasPrefix(lower, "key points") || strings.HasPrefix(lower, "sentiment")
		hasMoney := moneyRe.MatchString(ctx)
		hasKeyword := eventKeywordRe.MatchString(ctx)

		if tooLong || !hasCalendarCue || !hasTimeCue || looksLikeBullets || hasMoney || !hasKeyword {
			continue
		}

		location := ExtractLocation(ctx)
		if location == "" {
			location = fallbackLocation(ctx)
			if location != "" {
				location = sanitizeLocation(location)
			}
		}

		ev := core.Event{
			Title:        deriveEventTitle(ctx),
			StartTime:    dt,
			LocationName: location,
			Context:      ctx,
		}
		key := ev.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		events = append(events, ev)
		if len(events) >= maxEventsPer {
			break
		}
	}
	return events
}

// scanDates finds dated snippets: month-day phrases, numeric dates, and
// bare weekday names resolved to their next occurrence.
func scanDates(text string, now time.Time) []dateCandidate {
	var candidates []dateCandidate

	for _, m := range monthDayRe.FindAllStringSubmatchIndex(text, -1) {
		snippet := text[m[0]:m[1]]
		sub := monthDayRe.FindStringSubmatch(snippet)
		month, ok := monthNumbers[strings.ToLower(strings.TrimSuffix(sub[1], "."))[:3]]
		if !ok {
			continue
		}
		day, err := strconv.Atoi(sub[2])
		if err != nil {
			continue
		}
		year := now.Year()
		explicitYear := false
		if sub[3] != "" {
			if y, err := strconv.Atoi(sub[3]); err == nil {
				year = y
				explicitYear = true
			}
		}
		dt := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		// Prefer future dates when the year is implied.
		if !explicitYear && dt.Before(now.Add(-pastGraceHours*time.Hour)) {
			dt = dt.AddDate(1, 0, 0)
		}
		candidates = append(candidates, dateCandidate{snippet: snippet, index: m[0], when: dt})
	}

	for _, m := range numericRe.FindAllStringIndex(text, -1) {
		snippet := text[m[0]:m[1]]
		if dt, err := dateparse.ParseAny(snippet); err == nil {
			candidates = append(candidates, dateCandidate{snippet: snippet, index: m[0], when: dt.UTC()})
		}
	}

	// Bare weekdays only count when the text holds no explicit date at
	// all; they resolve to the next occurrence.
	if len(candidates) == 0 {
		for _, m := range weekdayRe.FindAllStringIndex(text, -1) {
			snippet := text[m[0]:m[1]]
			wd, ok := weekdayNumbers[strings.ToLower(snippet)[:3]]
			if !ok {
				continue
			}
			days := (int(wd) - int(now.Weekday()) + 7) % 7
			if days == 0 {
				days = 7
			}
			dt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
			candidates = append(candidates, dateCandidate{snippet: snippet, index: m[0], when: dt})
		}
	}

	return candidates
}

// findTimeOfDay pulls the first clock time out of a context window.
func findTimeOfDay(ctx string) (hour, minute int, ok bool) {
	m := timeRe.FindStringSubmatch(ctx)
	if m == nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 12 {
		return 0, 0, false
	}
	minute = 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	meridiem := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
	if meridiem == "pm" && h != 12 {
		h += 12
	}
	if meridiem == "am" && h == 12 {
		h = 0
	}
	return h, minute, true
}

// extractContext returns a ±window slice around the snippet, trimmed to
// sentence boundaries when they fall inside the window.
func extractContext(fullText, snippet string, index int) string {
	if index < 0 || index > len(fullText) {
		index = strings.Index(strings.ToLower(fullText), strings.ToLower(snippet))
		if index == -1 {
			index = 0
		}
	}
	start := index - contextWindow
	if start < 0 {
		start = 0
	}
	end := index + len(snippet) + contextWindow
	if end > len(fullText) {
		end = len(fullText)
	}
	ctx := fullText[start:end]
	snippetPos := index - start

	// Trim to the sentence boundaries surrounding the snippet when they
	// fall inside the window.
	if before := strings.LastIndex(ctx[:snippetPos], ". "); before != -1 {
		ctx = ctx[before+2:]
		snippetPos -= before + 2
	}
	if after := strings.Index(ctx[snippetPos+len(snippet):], ". "); after != -1 {
		ctx = ctx[:snippetPos+len(snippet)+after+1]
	}
	return strings.TrimSpace(ctx)
}

// ExtractLocation pulls a location phrase introduced by a preposition.
func ExtractLocation(text string) string {
	m := locationRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return sanitizeLocation(m[1])
}

func fallbackLocation(text string) string {
	if m := locationFallbackAt.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := locationFallbackIn.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func sanitizeLocation(raw string) string {
	candidate := wsRe.ReplaceAllString(raw, " ")
	candidate = strings.Trim(candidate, " .,:;")
	candidate = locationTrailerRe.ReplaceAllString(candidate, "")
	if len(candidate) > 120 {
		candidate = candidate[:120]
	}
	return candidate
}

// deriveEventTitle uses the first sentence of the context, truncated.
func deriveEventTitle(ctx string) string {
	if ctx == "" {
		return "Community event"
	}
	title := ctx
	if i := strings.Index(ctx, ". "); i != -1 {
		title = ctx[:i+1]
	}
	title = strings.TrimSpace(title)
	if len(title) > 160 {
		title = title[:157] + "..."
	}
	if title == "" {
		return "Community event"
	}
	return title
}
