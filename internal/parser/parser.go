package parser

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/dustin/go-humanize"
	ptn "github.com/razsteinmetz/go-ptn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Parser struct {
	now       func() time.Time
	languages map[string]string
	langRe    *regexp.Regexp
}

type Option func(*Parser)

func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// WithLanguages adds spellings to the language vocabulary. Keys are
// spellings, values the canonical language name.
func WithLanguages(extra map[string]string) Option {
	return func(p *Parser) {
		for spelling, name := range extra {
			spelling = strings.ToLower(strings.TrimSpace(spelling))
			name = strings.TrimSpace(name)
			if spelling == "" || name == "" {
				continue
			}
			p.languages[spelling] = name
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		now:       time.Now,
		languages: make(map[string]string, len(defaultLanguages)),
	}
	for spelling, name := range defaultLanguages {
		p.languages[spelling] = name
	}
	for _, opt := range opts {
		opt(p)
	}
	p.langRe = compileLanguages(p.languages)
	return p
}

var defaultParser = New()

// Parse runs the default parser.
func Parse(filename string) domain.MovieMeta {
	return defaultParser.Parse(filename)
}

// Parse never fails; fields it cannot recognise stay at their zero value.
func (p *Parser) Parse(filename string) domain.MovieMeta {
	meta := domain.MovieMeta{RawFilename: filename}

	stem, ext := splitExtension(strings.TrimSpace(filename))
	meta.Extension = ext

	w := newWorking(stripNoise(stem))
	meta.Year = w.claimYear(p.now().Year() + 1)
	meta.Resolution = w.claimResolution()
	meta.Codec = w.claimFirst(codecs)
	meta.AudioFormat = w.claimFirst(audioFormats)
	meta.Bitrate = w.claimBitrate()
	meta.Quality = w.claimFirst(qualities)
	meta.Size = w.claimSize()
	meta.Subtitles = w.claimFlag(subtitlePattern)
	meta.Proper = w.claimFlag(properPattern)
	meta.Repack = w.claimFlag(repackPattern)

	boundary := w.boundary()
	meta.Languages = p.claimLanguages(w, boundary)
	meta.Title = p.title(w, boundary, stem)

	return meta
}

// ParseUpload parses the upload filename and fills the size from the byte
// count when the name carries none.
func (p *Parser) ParseUpload(raw domain.RawUpload) domain.MovieMeta {
	meta := p.Parse(raw.Filename)
	if meta.Size == "" && raw.SizeBytes > 0 {
		meta.Size = formatBytes(raw.SizeBytes)
	}
	return meta
}

func splitExtension(name string) (string, string) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := videoExtensions[ext]; !ok {
		return name, ""
	}
	return name[:len(name)-len(ext)], ext
}

func stripNoise(stem string) string {
	stem = sitePrefixPattern.ReplaceAllString(stem, "")
	return handlePattern.ReplaceAllString(stem, " ")
}

func (p *Parser) claimLanguages(w *working, boundary int) []string {
	brackets := bracketPattern.FindAllIndex(w.buf, -1)
	structured := boundary < len(w.buf)

	var langs []string
	seen := make(map[string]struct{})
	for _, s := range findTokens(p.langRe, w.buf) {
		text := string(w.buf[s.start:s.end])
		name, ok := p.languages[strings.ToLower(text)]
		if !ok {
			continue
		}
		if !languageAllowed(s, text, boundary, structured, brackets, w.buf) {
			continue
		}
		w.mask(s)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		langs = append(langs, titleCase(text))
	}
	return langs
}

// languageAllowed keeps language words that belong to the title out of the
// language list. Anything after the first structural token or inside
// brackets counts; without structural tokens only full names past the first
// word do.
func languageAllowed(s span, text string, boundary int, structured bool, brackets [][]int, buf []byte) bool {
	if s.start >= boundary {
		return true
	}
	for _, b := range brackets {
		if s.start > b[0] && s.end < b[1] {
			return true
		}
	}
	if structured || len(text) <= shortCodeMaxLen {
		return false
	}
	return !isBlank(buf[:s.start])
}

func (p *Parser) title(w *working, boundary int, stem string) string {
	title := cleanTitle(string(w.buf[:boundary]))
	if title == "" {
		title = cleanTitle(string(w.buf))
	}
	if title == "" {
		title = hintTitle(stem)
	}
	if title == "" {
		title = strings.TrimSpace(stem)
	}
	if title == "" {
		return domain.Unknown
	}
	return titleCase(title)
}

// hintTitle asks go-ptn for a title when token removal left nothing behind.
func hintTitle(stem string) string {
	if isBlank([]byte(stem)) {
		return ""
	}
	info, err := ptn.Parse(stem)
	if err != nil {
		return ""
	}
	title := cleanTitle(info.Title)
	if info.Group != "" && strings.EqualFold(title, info.Group) {
		return ""
	}
	return title
}

var titleSeparators = regexp.MustCompile(`[._\[\](){}|]+`)

func cleanTitle(s string) string {
	s = titleSeparators.ReplaceAllString(s, " ")
	s = junkPhrases.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, word := range words {
		if strings.Trim(word, "-+,/&") == "" {
			continue
		}
		if _, junk := junkWords[strings.ToLower(word)]; junk {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func normalizeSize(token string) string {
	m := sizePartsPattern.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return ""
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(value, 'f', -1, 64) + strings.ToUpper(m[2])
}

func formatBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func compileLanguages(languages map[string]string) *regexp.Regexp {
	spellings := make([]string, 0, len(languages))
	for spelling := range languages {
		spellings = append(spellings, regexp.QuoteMeta(spelling))
	}
	sort.Slice(spellings, func(i, j int) bool {
		if len(spellings[i]) != len(spellings[j]) {
			return len(spellings[i]) > len(spellings[j])
		}
		return spellings[i] < spellings[j]
	})
	return bounded(strings.Join(spellings, "|"))
}
