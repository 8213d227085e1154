package parser

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/amaumene/autopost/internal/domain"
)

func fixedParser(opts ...Option) *Parser {
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return New(append([]Option{WithClock(clock)}, opts...)...)
}

func TestParse_FullRelease(t *testing.T) {
	p := fixedParser()
	got := p.Parse("Avengers.Endgame.2019.BluRay.720p.x264.Tamil.Telugu.Hindi.Eng.DD5.1.1.3GB.ESub.mkv")

	want := domain.MovieMeta{
		Title:       "Avengers Endgame",
		Year:        2019,
		Quality:     "BluRay",
		Resolution:  domain.Resolution720p,
		Codec:       "x264",
		Languages:   []string{"Tamil", "Telugu", "Hindi", "Eng"},
		AudioFormat: "DD5.1",
		Size:        "1.3GB",
		Subtitles:   true,
		Extension:   ".mkv",
		RawFilename: "Avengers.Endgame.2019.BluRay.720p.x264.Tamil.Telugu.Hindi.Eng.DD5.1.1.3GB.ESub.mkv",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParse(t *testing.T) {
	p := fixedParser()

	tests := []struct {
		name      string
		filename  string
		title     string
		year      int
		quality   string
		res       domain.Resolution
		codec     string
		audio     string
		languages []string
		size      string
	}{
		{
			name:     "dotted name",
			filename: "Movie.X.2020.720p.mkv",
			title:    "Movie X",
			year:     2020,
			res:      domain.Resolution720p,
		},
		{
			name:     "spaced name with parenthesised year",
			filename: "Movie X (2020) 1080p.mkv",
			title:    "Movie X",
			year:     2020,
			res:      domain.Resolution1080p,
		},
		{
			name:     "no year",
			filename: "Some.Random.Movie.720p.mkv",
			title:    "Some Random Movie",
			res:      domain.Resolution720p,
		},
		{
			name:     "numeric title keeps leading year-like token",
			filename: "2012.2009.720p.BluRay.mkv",
			title:    "2012",
			year:     2009,
			quality:  "BluRay",
			res:      domain.Resolution720p,
		},
		{
			name:     "last year wins",
			filename: "Blade.Runner.2049.2017.2160p.HEVC.mkv",
			title:    "Blade Runner 2049",
			year:     2017,
			res:      domain.Resolution2160p,
			codec:    "HEVC",
		},
		{
			name:     "future year is not a year",
			filename: "Movie.2099.720p.mkv",
			title:    "Movie 2099",
			res:      domain.Resolution720p,
		},
		{
			name:     "4k synonym and web-dl",
			filename: "Dune.Part.Two.2024.4K.WEB-DL.DDP5.1.Atmos.x265.mkv",
			title:    "Dune Part Two",
			year:     2024,
			quality:  "WEB-DL",
			res:      domain.Resolution2160p,
			codec:    "x265",
			audio:    "DD+5.1",
		},
		{
			name:      "site prefix and bracketed languages",
			filename:  "www.TamilBlasters.com - Movie [Tamil + Hindi] (2021) HDRip 400MB.mkv",
			title:     "Movie",
			year:      2021,
			quality:   "HDRip",
			languages: []string{"Tamil", "Hindi"},
			size:      "400MB",
		},
		{
			name:     "language word inside title",
			filename: "English.Vinglish.2012.1080p.mkv",
			title:    "English Vinglish",
			year:     2012,
			res:      domain.Resolution1080p,
		},
		{
			name:     "short code inside title",
			filename: "Ben.Is.Back.2018.720p.mkv",
			title:    "Ben Is Back",
			year:     2018,
			res:      domain.Resolution720p,
		},
		{
			name:      "duplicate language spellings",
			filename:  "Movie.2020.720p.Tamil.Tam.AAC.mkv",
			title:     "Movie",
			year:      2020,
			res:       domain.Resolution720p,
			audio:     "AAC",
			languages: []string{"Tamil"},
		},
		{
			name:     "junk tags dropped from title",
			filename: "Movie.Extended.Directors.Cut.2010.1080p.mkv",
			title:    "Movie",
			year:     2010,
			res:      domain.Resolution1080p,
		},
		{
			name:     "h264 maps to x264",
			filename: "Movie.2015.720p.H.264.mp4",
			title:    "Movie",
			year:     2015,
			res:      domain.Resolution720p,
			codec:    "x264",
		},
		{
			name:     "unknown extension kept in stem",
			filename: "Movie.2015.720p.part1",
			title:    "Movie",
			year:     2015,
			res:      domain.Resolution720p,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.filename)
			if got.Title != tt.title {
				t.Errorf("Title = %q, want %q", got.Title, tt.title)
			}
			if got.Year != tt.year {
				t.Errorf("Year = %d, want %d", got.Year, tt.year)
			}
			if got.Quality != tt.quality {
				t.Errorf("Quality = %q, want %q", got.Quality, tt.quality)
			}
			if got.Resolution != tt.res {
				t.Errorf("Resolution = %q, want %q", got.Resolution, tt.res)
			}
			if got.Codec != tt.codec {
				t.Errorf("Codec = %q, want %q", got.Codec, tt.codec)
			}
			if got.AudioFormat != tt.audio {
				t.Errorf("AudioFormat = %q, want %q", got.AudioFormat, tt.audio)
			}
			if !reflect.DeepEqual(got.Languages, tt.languages) {
				t.Errorf("Languages = %v, want %v", got.Languages, tt.languages)
			}
			if got.Size != tt.size {
				t.Errorf("Size = %q, want %q", got.Size, tt.size)
			}
		})
	}
}

// Removing one recognisable token only changes the field it feeds.
func TestParse_TokenIndependence(t *testing.T) {
	p := fixedParser()
	tokens := []string{"2019", "BluRay", "720p", "x264", "Tamil", "Telugu", "Hindi", "Eng", "DD5.1", "1.3GB", "ESub"}
	full := p.Parse(strings.Join(append([]string{"Avengers", "Endgame"}, tokens...), ".") + ".mkv")

	for i, removed := range tokens {
		t.Run("without "+removed, func(t *testing.T) {
			rest := make([]string, 0, len(tokens)-1)
			rest = append(rest, tokens[:i]...)
			rest = append(rest, tokens[i+1:]...)
			name := strings.Join(append([]string{"Avengers", "Endgame"}, rest...), ".") + ".mkv"
			got := p.Parse(name)

			want := full
			want.RawFilename = name
			switch removed {
			case "2019":
				want.Year = 0
			case "BluRay":
				want.Quality = ""
			case "720p":
				want.Resolution = domain.ResolutionUnknown
			case "x264":
				want.Codec = ""
			case "DD5.1":
				want.AudioFormat = ""
			case "1.3GB":
				want.Size = ""
			case "ESub":
				want.Subtitles = false
			default:
				langs := make([]string, 0, len(full.Languages))
				for _, l := range full.Languages {
					if l != removed {
						langs = append(langs, l)
					}
				}
				want.Languages = langs
			}

			if !reflect.DeepEqual(got, want) {
				t.Errorf("Parse(%q) =\n%+v\nwant\n%+v", name, got, want)
			}
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	p := fixedParser()
	names := []string{
		"Avengers.Endgame.2019.BluRay.720p.x264.Tamil.Telugu.Hindi.Eng.DD5.1.1.3GB.ESub.mkv",
		"Movie X (2020) 1080p.mkv",
		"",
		"....",
	}
	for _, name := range names {
		first := p.Parse(name)
		second := p.Parse(name)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Parse(%q) not stable: %+v vs %+v", name, first, second)
		}
	}
}

func TestParse_FlagsAndBitrate(t *testing.T) {
	p := fixedParser()
	got := p.Parse("Movie.2021.PROPER.720p.HDRip.AAC.192Kbps.Tamil.mkv")

	if !got.Proper {
		t.Error("Proper = false, want true")
	}
	if got.Repack {
		t.Error("Repack = true, want false")
	}
	if got.Bitrate != "192Kbps" {
		t.Errorf("Bitrate = %q, want 192Kbps", got.Bitrate)
	}
	if got.AudioFormat != "AAC" {
		t.Errorf("AudioFormat = %q, want AAC", got.AudioFormat)
	}
	if got.Subtitles {
		t.Error("Subtitles = true, want false")
	}
}

func TestParse_NothingLeftForTitle(t *testing.T) {
	got := fixedParser().Parse("1080p.x264.mkv")
	if got.Title == "" {
		t.Error("Title is empty, want a fallback")
	}
	if got.Resolution != domain.Resolution1080p {
		t.Errorf("Resolution = %q, want 1080p", got.Resolution)
	}
}

func TestParse_EmptyStem(t *testing.T) {
	tests := []string{".mkv", "  .mp4", ".MKV"}
	for _, filename := range tests {
		t.Run(filename, func(t *testing.T) {
			got := fixedParser().Parse(filename)
			if got.Title != domain.Unknown {
				t.Errorf("Title = %q, want %q", got.Title, domain.Unknown)
			}
			if got.RawFilename != filename {
				t.Errorf("RawFilename = %q", got.RawFilename)
			}
		})
	}
}

func TestParseUpload_SizeFromBytes(t *testing.T) {
	p := fixedParser()

	tests := []struct {
		name string
		raw  domain.RawUpload
		want string
	}{
		{
			name: "size from bytes",
			raw:  domain.RawUpload{Filename: "Movie.2020.720p.mkv", SizeBytes: 1_300_000_000},
			want: "1.3GB",
		},
		{
			name: "filename size wins",
			raw:  domain.RawUpload{Filename: "Movie.2020.720p.700MB.mkv", SizeBytes: 1_300_000_000},
			want: "700MB",
		},
		{
			name: "no size at all",
			raw:  domain.RawUpload{Filename: "Movie.2020.720p.mkv"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ParseUpload(tt.raw).Size; got != tt.want {
				t.Errorf("Size = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithLanguages(t *testing.T) {
	p := fixedParser(WithLanguages(map[string]string{"odia": "Odia", " ": "skip"}))
	got := p.Parse("Movie.2020.720p.Odia.Hindi.mkv")

	want := []string{"Odia", "Hindi"}
	if !reflect.DeepEqual(got.Languages, want) {
		t.Errorf("Languages = %v, want %v", got.Languages, want)
	}
}

func TestNormalizeSize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.3GB", "1.3GB"},
		{"1.30gb", "1.3GB"},
		{"700 MB", "700MB"},
		{"2TB", "2TB"},
		{"big", ""},
	}
	for _, tt := range tests {
		if got := normalizeSize(tt.in); got != tt.want {
			t.Errorf("normalizeSize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
