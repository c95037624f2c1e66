// Package timeparse extracts the delivery time from a Russian reminder phrase
// such as "напомни купить хлеб через 10 минут" or "завтра в 12:00 позвонить".
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/ru"
)

// Result is the outcome of parsing one phrase. When is in UTC; Remainder is
// the reminder text with the time phrase and filler words removed.
type Result struct {
	Found     bool
	When      time.Time
	Remainder string
}

var relativeRe = regexp.MustCompile(`(?i)через\s+(\d+)\s*(минуту|минуты|минут|час|часа|часов)`)

// dottedDateRe matches DD.MM.YYYY. The ru hour rules would otherwise read
// "20.10.2026" as 20:10.
var dottedDateRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

var stopWords = map[string]struct{}{
	"напомни":    {},
	"напомнить":  {},
	"через":      {},
	"в":          {},
	"завтра":     {},
	"сегодня":    {},
	"пожалуйста": {},
}

// Parser resolves phrases relative to a local zone.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Use(slashDates)
	w.Add(ru.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: loc}
}

// Parse finds the first time expression in text. Bare clock times that are
// already behind now roll over to the next day.
func (p *Parser) Parse(text string, now time.Time) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}
	base := now.In(p.loc)

	if r, err := p.w.Parse(text, base); err == nil && r != nil {
		at := r.Time
		if at.Before(base) && base.Sub(at) < 24*time.Hour {
			at = at.Add(24 * time.Hour)
		}
		return Result{
			Found:     true,
			When:      at.UTC(),
			Remainder: CleanText(cut(text, r.Index, r.Index+len(r.Text))),
		}
	}

	if at, start, end, ok := parseRelative(text, base); ok {
		return Result{Found: true, When: at.UTC(), Remainder: CleanText(cut(text, start, end))}
	}
	return Result{}
}

// slashDates rewrites DD.MM.YYYY to DD/MM/YYYY for common.SlashDMY. The
// length is unchanged, so match offsets still index the original text.
func slashDates(text string) (string, error) {
	return dottedDateRe.ReplaceAllString(text, "$1/$2/$3"), nil
}

// parseRelative handles "через N минут/часов" when the rule set misses it.
func parseRelative(text string, base time.Time) (time.Time, int, int, bool) {
	loc := relativeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return time.Time{}, 0, 0, false
	}
	n, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	unit := time.Minute
	if strings.HasPrefix(strings.ToLower(text[loc[4]:loc[5]]), "час") {
		unit = time.Hour
	}
	return base.Add(time.Duration(n) * unit), loc[0], loc[1], true
}

// CleanText lowercases the phrase, drops filler words and capitalises the
// first letter.
func CleanText(text string) string {
	words := strings.Fields(strings.ToLower(text))
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopWords[strings.Trim(w, ".,:;!?")]; stop {
			continue
		}
		kept = append(kept, w)
	}
	out := strings.Trim(strings.Join(kept, " "), " .,:;")
	if out == "" {
		return ""
	}
	runes := []rune(out)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func cut(text string, start, end int) string {
	if start < 0 || end > len(text) || start > end {
		return text
	}
	return strings.TrimRight(text[:start], " ") + " " + strings.TrimLeft(text[end:], " ")
}
