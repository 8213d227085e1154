// Package groupkey derives the release identity shared by every quality
// variant of a title and year. The key doubles as the deep link start
// parameter, so it is limited to [a-z0-9_-] and 64 bytes.
package groupkey

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	noYearMarker = "noyear"
	emptySlug    = "title"
	maxKeyLen    = 64
)

func Derive(meta domain.MovieMeta) domain.GroupKey {
	return Build(meta.Title, meta.Year)
}

// Build returns slug_year, or slug_noyear without a year. Slugs that lose
// information (non-ASCII letters or truncation) carry a hash of the folded
// title so distinct titles never share a key.
func Build(title string, year int) domain.GroupKey {
	folded := fold(title)
	slug, lossy := slugify(folded)

	yearPart := "_" + noYearMarker
	if year > 0 {
		yearPart = "_" + strconv.Itoa(year)
	}

	if !lossy && slug != "" && len(slug)+len(yearPart) <= maxKeyLen {
		return domain.GroupKey(slug + yearPart)
	}

	hashPart := "-" + strconv.FormatUint(xxhash.Sum64String(strings.Join(strings.Fields(folded), " ")), 36)
	budget := maxKeyLen - len(yearPart) - len(hashPart)
	if len(slug) > budget {
		slug = strings.TrimRight(slug[:budget], "-")
	}
	if slug == "" {
		slug = emptySlug
	}
	return domain.GroupKey(slug + hashPart + yearPart)
}

func fold(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, title)
	if err != nil {
		stripped = title
	}
	return cases.Fold().String(stripped)
}

func slugify(folded string) (string, bool) {
	var words []string
	var word strings.Builder
	lossy := false

	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}

	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			word.WriteRune(r)
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			lossy = true
		default:
			flush()
		}
	}
	flush()

	return strings.Join(words, "-"), lossy
}
