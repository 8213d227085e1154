package domain

import (
	"sort"
	"strings"
	"time"
)

type AnnouncementKind string

const (
	AnnouncementPhoto AnnouncementKind = "photo"
	AnnouncementText  AnnouncementKind = "text"
)

// PhotoCaptionLimit is the longest caption Telegram accepts on a photo.
const PhotoCaptionLimit = 1024

// AnnouncementRef locates a published announcement. Kind decides whether an
// edit replaces the caption or the message text.
type AnnouncementRef struct {
	ChatID          int64            `json:"chat_id"`
	ChannelUsername string           `json:"channel_username,omitempty"`
	MessageID       int              `json:"message_id"`
	Kind            AnnouncementKind `json:"kind"`
}

type QualityVariant struct {
	Quality     string     `json:"quality,omitempty"`
	Resolution  Resolution `json:"resolution,omitempty"`
	Codec       string     `json:"codec,omitempty"`
	Languages   []string   `json:"languages,omitempty"`
	AudioFormat string     `json:"audio_format,omitempty"`
	Bitrate     string     `json:"bitrate,omitempty"`
	Size        string     `json:"size,omitempty"`
	Subtitles   bool       `json:"subtitles"`
	Extension   string     `json:"extension,omitempty"`
	File        FileRef    `json:"file"`
	Caption     string     `json:"caption,omitempty"`
	Filename    string     `json:"filename"`
	AddedAt     time.Time  `json:"added_at"`
}

// NewQualityVariant builds the variant stored for a parsed upload.
func NewQualityVariant(u Upload) QualityVariant {
	langs := make([]string, len(u.Meta.Languages))
	copy(langs, u.Meta.Languages)
	return QualityVariant{
		Quality:     u.Meta.Quality,
		Resolution:  u.Meta.Resolution,
		Codec:       u.Meta.Codec,
		Languages:   langs,
		AudioFormat: u.Meta.AudioFormat,
		Bitrate:     u.Meta.Bitrate,
		Size:        u.Meta.Size,
		Subtitles:   u.Meta.Subtitles,
		Extension:   u.Meta.Extension,
		File:        u.File,
		Caption:     u.Caption,
		Filename:    u.Meta.RawFilename,
		AddedAt:     u.ArrivedAt,
	}
}

// Identity is the de-duplication key of a variant: quality, resolution,
// codec, audio (language set plus format) and size.
func (v QualityVariant) Identity() string {
	langs := make([]string, len(v.Languages))
	for i, l := range v.Languages {
		langs[i] = strings.ToLower(l)
	}
	sort.Strings(langs)

	audio := strings.Join(langs, "+") + "/" + strings.ToLower(v.AudioFormat)
	return strings.Join([]string{
		strings.ToLower(v.Quality),
		strings.ToLower(string(v.Resolution)),
		strings.ToLower(v.Codec),
		audio,
		strings.ToLower(v.Size),
	}, "|")
}

type ReleaseRecord struct {
	Key           GroupKey         `json:"key"`
	Title         string           `json:"title"`
	Year          int              `json:"year,omitempty"`
	Variants      []QualityVariant `json:"variants"`
	PosterURL     string           `json:"poster_url,omitempty"`
	Announcement  *AnnouncementRef `json:"announcement,omitempty"`
	CaptionDigest string           `json:"caption_digest,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (r *ReleaseRecord) Announced() bool {
	return r.Announcement != nil
}

// MergeVariants appends every variant whose identity is not already present
// and returns how many were added.
func (r *ReleaseRecord) MergeVariants(variants []QualityVariant) int {
	seen := make(map[string]struct{}, len(r.Variants)+len(variants))
	for _, v := range r.Variants {
		seen[v.Identity()] = struct{}{}
	}

	added := 0
	for _, v := range variants {
		id := v.Identity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r.Variants = append(r.Variants, v)
		added++
	}
	return added
}

// AppendRequest is the atomic create-or-amend applied by a ReleaseRepository.
type AppendRequest struct {
	Key       GroupKey
	Title     string
	Year      int
	PosterURL string
	Variants  []QualityVariant
}

func (req AppendRequest) Validate() error {
	if req.Key == "" {
		return ErrInvalidInput
	}
	return nil
}

// ApplyAppend folds req into rec, creating the record when rec is nil. The
// poster is only set when the record has none.
func ApplyAppend(rec *ReleaseRecord, req AppendRequest, now time.Time) *ReleaseRecord {
	if rec == nil {
		rec = &ReleaseRecord{
			Key:       req.Key,
			Title:     req.Title,
			Year:      req.Year,
			CreatedAt: now,
		}
	}
	if rec.PosterURL == "" {
		rec.PosterURL = req.PosterURL
	}
	rec.MergeVariants(req.Variants)
	rec.UpdatedAt = now
	return rec
}

// ApplyAnnouncement sets the announcement reference once. Recording the same
// reference again is a no-op; a different one is a conflict.
func ApplyAnnouncement(rec *ReleaseRecord, ref AnnouncementRef, digest string, now time.Time) error {
	if rec.Announcement != nil {
		if *rec.Announcement != ref {
			return ErrAnnouncementConflict
		}
	} else {
		r := ref
		rec.Announcement = &r
	}
	if digest != "" {
		rec.CaptionDigest = digest
	}
	rec.UpdatedAt = now
	return nil
}
