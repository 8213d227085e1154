package service

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/amaumene/autopost/internal/domain"
	"github.com/cespare/xxhash/v2"
)

const deepLinkBase = "https://t.me/"

// DeepLink is the start link the file store bot resolves to every file of
// the release.
func DeepLink(bot string, key domain.GroupKey) string {
	return deepLinkBase + strings.TrimPrefix(bot, "@") + "?start=" + key.String()
}

// BuildCaption renders the announcement for a record as Telegram HTML. The
// output depends only on the record and the bot name.
func BuildCaption(rec *domain.ReleaseRecord, bot string) string {
	return renderCaption(rec, bot, len(rec.Variants))
}

// FitCaption is BuildCaption limited to limit characters. Variant lines are
// dropped from the end and summarised as "…and N more" until it fits.
func FitCaption(rec *domain.ReleaseRecord, bot string, limit int) string {
	caption := BuildCaption(rec, bot)
	for shown := len(rec.Variants) - 1; shown >= 0 && utf8.RuneCountInString(caption) > limit; shown-- {
		caption = renderCaption(rec, bot, shown)
	}
	return caption
}

func renderCaption(rec *domain.ReleaseRecord, bot string, shown int) string {
	var b strings.Builder

	b.WriteString("🎬 <b>" + html.EscapeString(rec.Title) + "</b>\n")
	if rec.Year > 0 {
		b.WriteString("📅 <b>" + strconv.Itoa(rec.Year) + "</b>\n")
	}
	b.WriteString("📀 <b>" + html.EscapeString(orUnknown(strings.Join(uniqueQualities(rec.Variants), " | "))) + "</b>\n")
	b.WriteString("🎧 <b>" + html.EscapeString(orUnknown(strings.Join(uniqueLanguages(rec.Variants), " + "))) + "</b>\n")

	b.WriteString("\n🔺 <b>Telegram File</b> 🔻\n\n")
	for _, v := range rec.Variants[:shown] {
		b.WriteString("♨️ " + variantLine(rec, v) + "\n")
	}
	if hidden := len(rec.Variants) - shown; hidden > 0 {
		b.WriteString("♨️ …and " + strconv.Itoa(hidden) + " more\n")
	}

	b.WriteString("\n📦 <b>Get all files in one link:</b>\n")
	b.WriteString("<code>" + html.EscapeString(DeepLink(bot, rec.Key)) + "</code>\n\n")
	b.WriteString("Note ❗: If the link is not working, copy it and paste into your browser.")

	return b.String()
}

// CaptionDigest fingerprints a caption so unchanged announcements are not
// edited again.
func CaptionDigest(caption string) string {
	return strconv.FormatUint(xxhash.Sum64String(caption), 16)
}

func variantLine(rec *domain.ReleaseRecord, v domain.QualityVariant) string {
	if first := firstLine(v.Caption); first != "" {
		return html.EscapeString(first)
	}

	head := domain.MovieMeta{Title: rec.Title, Year: rec.Year}.DisplayTitle()
	if v.Quality != "" {
		head += " " + v.Quality
	}

	var parts []string
	if v.Resolution != domain.ResolutionUnknown {
		parts = append(parts, string(v.Resolution))
	}
	if v.Codec != "" {
		parts = append(parts, v.Codec)
	}
	if len(v.Languages) > 0 {
		parts = append(parts, "["+strings.Join(v.Languages, " + ")+"]")
	}
	if audio := joinNonEmpty(" - ", v.AudioFormat, v.Bitrate); audio != "" {
		parts = append(parts, "("+audio+")")
	}
	if v.Size != "" {
		parts = append(parts, v.Size)
	}
	if v.Subtitles {
		parts = append(parts, "ESub")
	}

	if len(parts) == 0 {
		return html.EscapeString(head)
	}
	return html.EscapeString(head + " - " + strings.Join(parts, " - "))
}

func uniqueQualities(variants []domain.QualityVariant) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range variants {
		q := v.Quality
		if q == "" {
			q = string(v.Resolution)
		}
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

func uniqueLanguages(variants []domain.QualityVariant) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range variants {
		for _, l := range v.Languages {
			k := strings.ToLower(l)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func joinNonEmpty(sep string, values ...string) string {
	kept := values[:0:0]
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}

func orUnknown(s string) string {
	if s == "" {
		return domain.Unknown
	}
	return s
}
