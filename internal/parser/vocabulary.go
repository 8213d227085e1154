package parser

import (
	"regexp"

	"github.com/amaumene/autopost/internal/domain"
)

// sep is the character class that separates tokens in release names.
const sep = `[\s._\-\[\](){}+,&|/]`

type token struct {
	re    *regexp.Regexp
	label string
}

// bounded compiles pattern so that it only matches a whole token. Group 1 is
// the token itself.
func bounded(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|` + sep + `)(` + pattern + `)(?:` + sep + `|$)`)
}

func vocab(pairs ...string) []token {
	tokens := make([]token, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		tokens = append(tokens, token{re: bounded(pairs[i]), label: pairs[i+1]})
	}
	return tokens
}

var videoExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".m4v": {},
	".webm": {}, ".ts": {}, ".m2ts": {}, ".flv": {}, ".mpg": {}, ".mpeg": {},
}

var (
	sitePrefixPattern = regexp.MustCompile(`(?i)^\s*\[?\s*www\.[a-z0-9-]+(?:\.[a-z]{2,6})+(?:\s*\]\s*-?\s*|\s*-\s*)`)
	handlePattern     = regexp.MustCompile(`@[A-Za-z0-9_]+`)
	yearPattern       = bounded(`(?:19|20)\d{2}`)
	sizePattern       = bounded(`\d+(?:\.\d+)?\s?(?:MB|GB|TB)`)
	sizePartsPattern  = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s?(MB|GB|TB)$`)
	bitratePattern    = bounded(`\d{2,4}\s?kbps`)
	bitrateNumPattern = regexp.MustCompile(`\d+`)
	subtitlePattern   = bounded(`(?:hc-?)?esubs?|msubs?|subs|subtitles?|subbed`)
	properPattern     = bounded(`proper`)
	repackPattern     = bounded(`repack|rerip`)
	bracketPattern    = regexp.MustCompile(`[\[(][^\])]*[\])]`)
	separatorsPattern = regexp.MustCompile(sep + `+`)
)

var resolutions = []struct {
	re         *regexp.Regexp
	resolution domain.Resolution
}{
	{bounded(`2160p|4k|uhd|3840x2160`), domain.Resolution2160p},
	{bounded(`1080[pi]|1920x1080`), domain.Resolution1080p},
	{bounded(`720p|1280x720`), domain.Resolution720p},
	{bounded(`576p`), domain.Resolution576p},
	{bounded(`480p`), domain.Resolution480p},
	{bounded(`360p`), domain.Resolution360p},
}

var codecs = vocab(
	`x\.?265`, "x265",
	`x\.?264`, "x264",
	`hevc|h\.?265`, "HEVC",
	`h\.?264|avc`, "x264",
	`xvid`, "XviD",
	`divx`, "DivX",
	`av1`, "AV1",
	`vp9`, "VP9",
)

// Longer forms come first so that DD+5.1 is not claimed as DD5.1 or 5.1.
var audioFormats = vocab(
	`(?:dd\+|ddp|e-?ac-?3)\s?7\.1`, "DD+7.1",
	`(?:dd\+|ddp|e-?ac-?3)\s?5\.1`, "DD+5.1",
	`(?:dd|ac-?3)\s?5\.1`, "DD5.1",
	`dd\s?2\.0`, "DD2.0",
	`dts-?hd(?:[\s.\-]?ma)?`, "DTS-HD",
	`true-?hd`, "TrueHD",
	`atmos`, "Atmos",
	`dts`, "DTS",
	`aac\s?5\.1`, "AAC5.1",
	`aac\s?2\.0`, "AAC2.0",
	`aac`, "AAC",
	`ddp|dd\+|e-?ac-?3`, "DD+",
	`ac-?3`, "AC3",
	`mp3`, "MP3",
	`opus`, "Opus",
	`flac`, "FLAC",
	`7\.1`, "7.1",
	`5\.1`, "5.1",
	`stereo`, "Stereo",
)

var qualities = vocab(
	`blu-?ray|bd-?rip`, "BluRay",
	`br-?rip`, "BRRip",
	`web-?dl`, "WEB-DL",
	`web-?rip`, "WEBRip",
	`hd-?rip`, "HDRip",
	`dvd-?rip`, "DVDRip",
	`pre-?dvd(?:rip)?`, "PreDVD",
	`hd-?ts`, "HDTS",
	`hd-?cam`, "HDCAM",
	`cam-?rip`, "CAMRip",
	`tv-?rip`, "TVRip",
	`hdtv`, "HDTV",
	`web`, "WEB",
)

// defaultLanguages maps every recognised spelling to its canonical language.
var defaultLanguages = map[string]string{
	"tamil": "Tamil", "tam": "Tamil",
	"telugu": "Telugu", "tel": "Telugu",
	"hindi": "Hindi", "hin": "Hindi",
	"english": "English", "eng": "English",
	"malayalam": "Malayalam", "mal": "Malayalam",
	"kannada": "Kannada", "kan": "Kannada",
	"bengali": "Bengali", "ben": "Bengali",
	"punjabi": "Punjabi",
	"marathi": "Marathi",
	"gujarati": "Gujarati",
	"korean": "Korean", "kor": "Korean",
	"japanese": "Japanese", "jap": "Japanese", "jpn": "Japanese",
	"chinese": "Chinese", "chi": "Chinese",
	"french": "French", "fre": "French",
	"spanish": "Spanish", "spa": "Spanish",
	"arabic": "Arabic",
	"russian": "Russian", "rus": "Russian",
	"german": "German", "ger": "German",
	"italian": "Italian", "ita": "Italian",
	"portuguese": "Portuguese", "por": "Portuguese",
}

// shortCodeMaxLen is the longest spelling treated as a language code. Codes
// only count outside the title region because they collide with real words.
const shortCodeMaxLen = 3

var junkWords = map[string]struct{}{
	"extended": {}, "theatrical": {}, "unrated": {}, "remastered": {}, "uncut": {},
	"proper": {}, "repack": {}, "readnfo": {}, "internal": {}, "retail": {},
	"scene": {}, "yify": {}, "yts": {}, "rarbg": {}, "fgt": {}, "ganool": {},
	"mkvcage": {}, "psarips": {}, "pahe": {}, "hq": {}, "hdr": {}, "10bit": {},
	"8bit": {}, "dual": {}, "multi": {}, "audio": {}, "org": {}, "uncensored": {},
}

var junkPhrases = regexp.MustCompile(`(?i)\b(?:directors?\s?cut|dual\s?audio|multi\s?audio)\b`)
