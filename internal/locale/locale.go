// Package locale renders dates, times and relative durations in the
// display language of a calendar-events entry.
package locale

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/goodsign/monday"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Default is used whenever a requested language cannot be resolved.
var Default = language.English

// threshold is the fraction of a unit at which that unit is chosen.
const threshold = 0.85

var (
	supported = []language.Tag{
		language.English, // first entry is the matcher fallback
		language.Danish,
		language.German,
		language.Swedish,
		language.Norwegian,
		language.French,
	}
	matcher  = language.NewMatcher(supported)
	messages = buildCatalog()

	bokmal  = language.MustParseBase("nb")
	nynorsk = language.MustParseBase("nn")
)

var unitKeys = [unitCount]string{"year", "month", "week", "day", "hour", "minute", "second"}

func futureKey(u unit) string { return "future." + unitKeys[u] }
func pastKey(u unit) string   { return "past." + unitKeys[u] }

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(Default))
	for tag, p := range table {
		for u := unit(0); u < unitCount; u++ {
			mustSet(b, tag, futureKey(u), p.future[u])
			mustSet(b, tag, pastKey(u), p.past[u])
		}
		if err := b.SetString(tag, "now", p.now); err != nil {
			panic(fmt.Sprintf("locale: %s now: %v", tag, err))
		}
	}
	return b
}

func mustSet(b *catalog.Builder, tag language.Tag, key string, f forms) {
	msg := plural.Selectf(1, "%d", "one", f[0], "other", f[1])
	if err := b.Set(tag, key, msg); err != nil {
		panic(fmt.Sprintf("locale: %s %s: %v", tag, key, err))
	}
}

// Supported lists the BCP 47 codes with their own phrases.
func Supported() []string {
	out := make([]string, len(supported))
	for i, tag := range supported {
		out[i] = tag.String()
	}
	return out
}

// Resolve returns the first of codes that matches a supported language,
// falling back to Default. Empty and malformed codes are skipped.
func Resolve(codes ...string) language.Tag {
	for _, code := range codes {
		code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
		if code == "" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		// Hosts send the written standards; both share the Norwegian phrases.
		if base, _ := tag.Base(); base == bokmal || base == nynorsk {
			tag = language.Norwegian
		}
		_, idx, conf := matcher.Match(tag)
		if conf == language.No {
			continue
		}
		return supported[idx]
	}
	return Default
}

// Formatter renders strings for one resolved language.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	layout  layouts
	now     string
}

// New returns a Formatter for the first resolvable code, see Resolve.
func New(codes ...string) *Formatter {
	tag := Resolve(codes...)
	p, ok := table[tag]
	if !ok {
		tag = Default
		p = table[Default]
	}
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(messages)),
		layout:  p.layout,
		now:     p.now,
	}
}

// Tag is the resolved language.
func (f *Formatter) Tag() language.Tag {
	return f.tag
}

// Now returns the capitalized "now" phrase.
func (f *Formatter) Now() string {
	return capitalize(f.now)
}

// Date renders the medium date form of t, in t's location.
func (f *Formatter) Date(t time.Time) string {
	return monday.Format(t, f.layout.date, f.layout.monday)
}

// DateTime renders a medium date followed by a short time.
func (f *Formatter) DateTime(t time.Time) string {
	date := monday.Format(t, f.layout.date, f.layout.monday)
	clock := monday.Format(t, f.layout.clock, f.layout.monday)
	return fmt.Sprintf(f.layout.join, date, clock)
}

// TimeDelta renders d as a relative duration with direction, e.g.
// "in 3 days" or "2 hours ago". The largest unit reaching 85% is used.
func (f *Formatter) TimeDelta(d time.Duration) string {
	seconds := math.Abs(d.Seconds())
	for u := unit(0); u < unitCount; u++ {
		value := seconds / unitSeconds[u]
		if value < threshold {
			continue
		}
		n := int(math.Max(1, math.Round(value)))
		key := futureKey(u)
		if d < 0 {
			key = pastKey(u)
		}
		return f.printer.Sprintf(key, n)
	}
	return f.Now()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
