package parser

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/amaumene/autopost/internal/domain"
)

type span struct {
	start, end int
}

// working is the name being parsed. Claimed tokens are blanked in place so
// offsets stay comparable with the original stem.
type working struct {
	orig   []byte
	buf    []byte
	claims []span
}

func newWorking(s string) *working {
	return &working{orig: []byte(s), buf: []byte(s)}
}

func (w *working) mask(s span) {
	blank(w.buf, s)
}

func (w *working) claim(re *regexp.Regexp) []span {
	spans := findTokens(re, w.buf)
	for _, s := range spans {
		w.mask(s)
		w.claims = append(w.claims, s)
	}
	return spans
}

// claimFirst claims every match of every token and returns the label of the
// one that appears first in the name.
func (w *working) claimFirst(tokens []token) string {
	label := ""
	first := -1
	for _, tok := range tokens {
		spans := w.claim(tok.re)
		if len(spans) == 0 {
			continue
		}
		if first < 0 || spans[0].start < first {
			first = spans[0].start
			label = tok.label
		}
	}
	return label
}

func (w *working) claimResolution() domain.Resolution {
	resolution := domain.ResolutionUnknown
	first := -1
	for _, r := range resolutions {
		spans := w.claim(r.re)
		if len(spans) == 0 {
			continue
		}
		if first < 0 || spans[0].start < first {
			first = spans[0].start
			resolution = r.resolution
		}
	}
	return resolution
}

// claimYear takes the last plausible year. A year with nothing before it is
// left to the title, as in "1917.2019.720p".
func (w *working) claimYear(maxYear int) int {
	var chosen *span
	year := 0
	for _, s := range findTokens(yearPattern, w.buf) {
		if isBlank(w.buf[:s.start]) {
			continue
		}
		y, err := strconv.Atoi(string(w.buf[s.start:s.end]))
		if err != nil || y < 1900 || y > maxYear {
			continue
		}
		s := s
		chosen = &s
		year = y
	}
	if chosen == nil {
		return 0
	}
	w.mask(*chosen)
	w.claims = append(w.claims, *chosen)
	return year
}

func (w *working) claimSize() string {
	spans := w.claim(sizePattern)
	if len(spans) == 0 {
		return ""
	}
	return normalizeSize(string(w.raw(spans[0])))
}

func (w *working) claimBitrate() string {
	spans := w.claim(bitratePattern)
	if len(spans) == 0 {
		return ""
	}
	return bitrateNumPattern.FindString(string(w.raw(spans[0]))) + "Kbps"
}

func (w *working) claimFlag(re *regexp.Regexp) bool {
	return len(w.claim(re)) > 0
}

// boundary is where the title region ends: the first claimed token, or the
// end of the name when nothing was claimed.
func (w *working) boundary() int {
	b := len(w.buf)
	for _, s := range w.claims {
		if s.start < b {
			b = s.start
		}
	}
	return b
}

func (w *working) raw(s span) []byte {
	return w.orig[s.start:s.end]
}

// findTokens returns every bounded match of re in buf, ordered by position.
// Adjacent tokens share a separator, so matching repeats on a scratch copy
// with earlier matches blanked until nothing new is found.
func findTokens(re *regexp.Regexp, buf []byte) []span {
	scratch := make([]byte, len(buf))
	copy(scratch, buf)

	var spans []span
	for {
		progressed := false
		for _, loc := range re.FindAllSubmatchIndex(scratch, -1) {
			s := span{start: loc[2], end: loc[3]}
			if blank(scratch, s) {
				spans = append(spans, s)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})
	return spans
}

func blank(buf []byte, s span) bool {
	changed := false
	for i := s.start; i < s.end; i++ {
		if buf[i] != ' ' {
			buf[i] = ' '
			changed = true
		}
	}
	return changed
}

func isBlank(b []byte) bool {
	return len(separatorsPattern.ReplaceAll(b, nil)) == 0
}
