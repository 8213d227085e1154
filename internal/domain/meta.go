package domain

import (
	"strconv"
	"time"
)

type Resolution string

const (
	ResolutionUnknown Resolution = ""
	Resolution360p    Resolution = "360p"
	Resolution480p    Resolution = "480p"
	Resolution576p    Resolution = "576p"
	Resolution720p    Resolution = "720p"
	Resolution1080p   Resolution = "1080p"
	Resolution2160p   Resolution = "2160p"
)

// Unknown is rendered for enumerated fields the parser could not fill.
const Unknown = "Unknown"

// MovieMeta is the structured form of a release filename. Zero values mean
// the field was not recognised; Year is 0 when no year was found.
type MovieMeta struct {
	Title       string     `json:"title"`
	Year        int        `json:"year,omitempty"`
	Quality     string     `json:"quality,omitempty"`
	Resolution  Resolution `json:"resolution,omitempty"`
	Codec       string     `json:"codec,omitempty"`
	Languages   []string   `json:"languages,omitempty"`
	AudioFormat string     `json:"audio_format,omitempty"`
	Bitrate     string     `json:"bitrate,omitempty"`
	Size        string     `json:"size,omitempty"`
	Subtitles   bool       `json:"subtitles"`
	Proper      bool       `json:"proper,omitempty"`
	Repack      bool       `json:"repack,omitempty"`
	Extension   string     `json:"extension,omitempty"`
	RawFilename string     `json:"raw_filename"`
}

func (m MovieMeta) HasYear() bool {
	return m.Year > 0
}

// DisplayTitle is "Title (Year)" or just the title.
func (m MovieMeta) DisplayTitle() string {
	if !m.HasYear() {
		return m.Title
	}
	return m.Title + " (" + strconv.Itoa(m.Year) + ")"
}

// FileRef points at the uploaded message and file inside the source channel.
type FileRef struct {
	ChatID       int64  `json:"chat_id"`
	MessageID    int    `json:"message_id"`
	FileID       string `json:"file_id,omitempty"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
}

// RawUpload is what an upload source delivers for every document or video.
type RawUpload struct {
	Filename  string
	Caption   string
	File      FileRef
	SizeBytes int64
	ArrivedAt time.Time
}

// Upload is a parsed upload waiting in a debounce batch.
type Upload struct {
	Meta      MovieMeta `json:"meta"`
	File      FileRef   `json:"file"`
	SizeBytes int64     `json:"size_bytes"`
	Caption   string    `json:"caption,omitempty"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// GroupKey identifies a release and is the start parameter of its deep link.
type GroupKey string

func (k GroupKey) String() string {
	return string(k)
}
