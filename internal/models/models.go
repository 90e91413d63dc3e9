package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type ChannelStatus string

const (
	ChannelActive         ChannelStatus = "active"
	ChannelBanned         ChannelStatus = "banned"
	ChannelDeleted        ChannelStatus = "deleted"
	ChannelNoLongerExists ChannelStatus = "no_longer_exists"
	ChannelRemoved        ChannelStatus = "removed"
	ChannelTerminated     ChannelStatus = "terminated"
)

type PrivacyStatus string

const (
	PrivacyPublic      PrivacyStatus = "public"
	PrivacyUnlisted    PrivacyStatus = "unlisted"
	PrivacyPrivate     PrivacyStatus = "private"
	PrivacyBlocked     PrivacyStatus = "blocked"
	PrivacyDeleted     PrivacyStatus = "deleted"
	PrivacyUnavailable PrivacyStatus = "unavailable"
)

// VideoKind distinguishes the three mutually exclusive item types.
type VideoKind string

const (
	KindVideo      VideoKind = "video"
	KindShort      VideoKind = "short"
	KindLivestream VideoKind = "livestream"
)

// ──────────────────── Channel ────────────────────

type Channel struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	ProviderID string        `json:"provider_id" db:"provider_id"`
	Name       string        `json:"name" db:"name"`
	Status     ChannelStatus `json:"status" db:"status"`

	IndexVideos      bool `json:"index_videos" db:"index_videos"`
	IndexShorts      bool `json:"index_shorts" db:"index_shorts"`
	IndexLivestreams bool `json:"index_livestreams" db:"index_livestreams"`

	DownloadVideos      bool `json:"download_videos" db:"download_videos"`
	DownloadShorts      bool `json:"download_shorts" db:"download_shorts"`
	DownloadLivestreams bool `json:"download_livestreams" db:"download_livestreams"`

	Quality          int    `json:"quality" db:"quality"`
	ScannerSchedule  string `json:"scanner_schedule" db:"scanner_schedule"`
	FullArchive      bool   `json:"full_archive" db:"full_archive"`
	SlowFullArchive  bool   `json:"slow_full_archive" db:"slow_full_archive"`
	FullArchiveAfter *time.Time `json:"full_archive_after,omitempty" db:"full_archive_after"`
	FullIndexAfter   *time.Time `json:"full_index_after,omitempty" db:"full_index_after"`
	// FullArchiveCutoff filters out uploads older than the date.
	FullArchiveCutoff *time.Time `json:"full_archive_cutoff,omitempty" db:"full_archive_cutoff"`

	FullyIndexed            bool `json:"fully_indexed" db:"fully_indexed"`
	FullyIndexedShorts      bool `json:"fully_indexed_shorts" db:"fully_indexed_shorts"`
	FullyIndexedLivestreams bool `json:"fully_indexed_livestreams" db:"fully_indexed_livestreams"`

	SwapIndexVideosAfter      *time.Time `json:"swap_index_videos_after,omitempty" db:"swap_index_videos_after"`
	SwapIndexShortsAfter      *time.Time `json:"swap_index_shorts_after,omitempty" db:"swap_index_shorts_after"`
	SwapIndexLivestreamsAfter *time.Time `json:"swap_index_livestreams_after,omitempty" db:"swap_index_livestreams_after"`

	ForceNextDownloads int    `json:"force_next_downloads" db:"force_next_downloads"`
	SkipNextDownloads  int    `json:"skip_next_downloads" db:"skip_next_downloads"`
	TitleForces        string `json:"title_forces" db:"title_forces"`
	TitleSkips         string `json:"title_skips" db:"title_skips"`

	DurationMinimumVideos      int `json:"duration_minimum_videos" db:"duration_minimum_videos"`
	DurationMaximumVideos      int `json:"duration_maximum_videos" db:"duration_maximum_videos"`
	DurationMinimumLivestreams int `json:"duration_minimum_livestreams" db:"duration_minimum_livestreams"`
	DurationMaximumLivestreams int `json:"duration_maximum_livestreams" db:"duration_maximum_livestreams"`

	NeedsCookies             bool   `json:"needs_cookies" db:"needs_cookies"`
	ConvertVideosToMp3       bool   `json:"convert_videos_to_mp3" db:"convert_videos_to_mp3"`
	MirrorPlaylists          bool   `json:"mirror_playlists" db:"mirror_playlists"`
	BlockRescanWindowHours   *int   `json:"block_rescan_window_hours,omitempty" db:"block_rescan_window_hours"`
	SendDownloadNotification bool   `json:"send_download_notification" db:"send_download_notification"`
	DirectorySchema          string `json:"directory_schema" db:"directory_schema"`
	VideoDirectorySchema     string `json:"video_directory_schema" db:"video_directory_schema"`
	VideoFilenameSchema      string `json:"video_filename_schema" db:"video_filename_schema"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IndexingEnabled reports whether any of the per-kind indexing flags are set.
func (c *Channel) IndexingEnabled() bool {
	return c.IndexVideos || c.IndexShorts || c.IndexLivestreams
}

// TitleForceMatch reports whether the title contains any of the
// newline-separated force substrings. Matching is case-insensitive.
func (c *Channel) TitleForceMatch(title string) bool {
	return titleListMatch(c.TitleForces, title)
}

// TitleSkipMatch reports whether the title contains any of the
// newline-separated skip substrings.
func (c *Channel) TitleSkipMatch(title string) bool {
	return titleListMatch(c.TitleSkips, title)
}

// DurationBounds returns the configured [min, max] seconds for a kind.
// Zero means unbounded on that side. Shorts carry no duration gates.
func (c *Channel) DurationBounds(kind VideoKind) (min, max int) {
	switch kind {
	case KindLivestream:
		return c.DurationMinimumLivestreams, c.DurationMaximumLivestreams
	case KindVideo:
		return c.DurationMinimumVideos, c.DurationMaximumVideos
	}
	return 0, 0
}

func titleListMatch(list, title string) bool {
	if list == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, needle := range strings.Split(list, "\n") {
		needle = strings.TrimSpace(needle)
		if needle == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// ──────────────────── Playlist ────────────────────

type Playlist struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Title      string    `json:"title" db:"title"`
	Schedule   string    `json:"schedule" db:"schedule"`
	Quality    int       `json:"quality" db:"quality"`

	RestrictToAssignedChannel bool       `json:"restrict_to_assigned_channel" db:"restrict_to_assigned_channel"`
	ChannelID                 *uuid.UUID `json:"channel_id,omitempty" db:"channel_id"`

	TitleSkips                          string `json:"title_skips" db:"title_skips"`
	DisableWhenStringFoundInVideoTitle  string `json:"disable_when_string_found_in_video_title" db:"disable_when_string_found_in_video_title"`
	SyncDeletions                       bool   `json:"sync_deletions" db:"sync_deletions"`
	NotFoundFailures                    int    `json:"not_found_failures" db:"not_found_failures"`
	Hidden                              bool   `json:"hidden" db:"hidden"`
	NextPlaylistID                      *uuid.UUID `json:"next_playlist_id,omitempty" db:"next_playlist_id"`
	VideosDisplayOrdering               string `json:"videos_display_ordering" db:"videos_display_ordering"`
	VideosPlaybackOrdering              string `json:"videos_playback_ordering" db:"videos_playback_ordering"`
	DownloadCommentsOnIndex             bool   `json:"download_comments_on_index" db:"download_comments_on_index"`
	ConvertToAudio                      bool   `json:"convert_to_audio" db:"convert_to_audio"`
	VideoIndexingAddByTitle             string `json:"video_indexing_add_by_title" db:"video_indexing_add_by_title"`
	VideoIndexingAddByTitleLimitToChannels []uuid.UUID `json:"video_indexing_add_by_title_limit_to_channels,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TitleSkipMatch reports whether the title contains any of the
// newline-separated skip substrings.
func (p *Playlist) TitleSkipMatch(title string) bool {
	return titleListMatch(p.TitleSkips, title)
}

// MaxNotFoundFailures is the failure count at which a playlist's schedule
// is cleared and the playlist-disabled notification fires.
const MaxNotFoundFailures = 5

// ──────────────────── Video ────────────────────

type Video struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	ProviderID string     `json:"provider_id" db:"provider_id"`
	ChannelID  *uuid.UUID `json:"channel_id,omitempty" db:"channel_id"`

	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	UploadDate  *time.Time `json:"upload_date,omitempty" db:"upload_date"`
	Duration    int        `json:"duration" db:"duration"`
	Quality     int        `json:"quality" db:"quality"`

	File       string `json:"file" db:"file"`
	Audio      string `json:"audio" db:"audio"`
	Thumbnail  string `json:"thumbnail" db:"thumbnail"`
	InfoJSON   string `json:"info_json" db:"info_json"`
	DlpFormats Formats `json:"dlp_formats" db:"dlp_formats"`
	FormatID   string `json:"format_id" db:"format_id"`
	FormatNote string `json:"format_note" db:"format_note"`

	PrivacyStatus       PrivacyStatus `json:"privacy_status" db:"privacy_status"`
	AtMaxQuality        bool          `json:"at_max_quality" db:"at_max_quality"`
	RequestedMaxQuality bool          `json:"requested_max_quality" db:"requested_max_quality"`
	DateDownloaded      *time.Time    `json:"date_downloaded,omitempty" db:"date_downloaded"`

	Starred                 bool `json:"starred" db:"starred"`
	PreventDeletion         bool `json:"prevent_deletion" db:"prevent_deletion"`
	ForceDownload           bool `json:"force_download" db:"force_download"`
	PermitDownload          bool `json:"permit_download" db:"permit_download"`
	NeedsCookies            bool `json:"needs_cookies" db:"needs_cookies"`
	ConvertToAudio          bool `json:"convert_to_audio" db:"convert_to_audio"`
	DownloadCommentsOnIndex bool `json:"download_comments_on_index" db:"download_comments_on_index"`

	IsVideo      bool `json:"is_video" db:"is_video"`
	IsShort      bool `json:"is_short" db:"is_short"`
	IsLivestream bool `json:"is_livestream" db:"is_livestream"`

	SystemNotes SystemNotes `json:"system_notes" db:"system_notes"`

	PrivacyStatusChecks    int        `json:"privacy_status_checks" db:"privacy_status_checks"`
	LastPrivacyStatusCheck *time.Time `json:"last_privacy_status_check,omitempty" db:"last_privacy_status_check"`

	TitleLocked       bool `json:"title_locked" db:"title_locked"`
	DescriptionLocked bool `json:"description_locked" db:"description_locked"`
	SortOrdering      int  `json:"sort_ordering" db:"sort_ordering"`

	Inserted time.Time `json:"inserted" db:"inserted"`
	Updated  time.Time `json:"updated" db:"updated"`
}

// Kind returns which of the three mutually exclusive kind flags is set.
func (v *Video) Kind() VideoKind {
	switch {
	case v.IsShort:
		return KindShort
	case v.IsLivestream:
		return KindLivestream
	default:
		return KindVideo
	}
}

// SetKind sets exactly one of the kind flags.
func (v *Video) SetKind(kind VideoKind) {
	v.IsVideo = kind == KindVideo
	v.IsShort = kind == KindShort
	v.IsLivestream = kind == KindLivestream
}

// HasFile reports whether a storage handle is recorded for the video file.
func (v *Video) HasFile() bool {
	return v.File != ""
}

// URL returns the provider watch URL for the video.
func (v *Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ProviderID
}

// ──────────────────── Formats ────────────────────

// Format is one provider-reported download format.
type Format struct {
	FormatID   string `json:"format_id"`
	FormatNote string `json:"format_note,omitempty"`
	Ext        string `json:"ext,omitempty"`
	Height     int    `json:"height,omitempty"`
	Width      int    `json:"width,omitempty"`
	VCodec     string `json:"vcodec,omitempty"`
	ACodec     string `json:"acodec,omitempty"`
}

// Formats is the provider-reported format list, stored as JSON.
type Formats []Format

// MaxHeight returns the tallest reported height, 0 when no formats are known.
func (f Formats) MaxHeight() int {
	max := 0
	for _, fmt := range f {
		if fmt.Height > max {
			max = fmt.Height
		}
	}
	return max
}

// AtReportedMaxQuality reports whether the stored quality already meets
// the best height the provider lists. False when no formats are known.
func (v *Video) AtReportedMaxQuality() bool {
	best := v.DlpFormats.MaxHeight()
	return best > 0 && v.Quality >= best
}

// ──────────────────── PlaylistItem ────────────────────

type PlaylistItem struct {
	ID                            uuid.UUID `json:"id" db:"id"`
	PlaylistID                    uuid.UUID `json:"playlist_id" db:"playlist_id"`
	VideoID                       uuid.UUID `json:"video_id" db:"video_id"`
	DisplayOrder                  int       `json:"display_order" db:"display_order"`
	Download                      bool      `json:"download" db:"download"`
	ManuallyAdded                 bool      `json:"manually_added" db:"manually_added"`
	MissingFromPlaylistOnProvider bool      `json:"missing_from_playlist_on_provider" db:"missing_from_playlist_on_provider"`
	CreatedAt                     time.Time `json:"created_at" db:"created_at"`
}

// ──────────────────── DownloadError ────────────────────

type DownloadError struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	VideoID  uuid.UUID       `json:"video_id" db:"video_id"`
	Inserted time.Time       `json:"inserted" db:"inserted"`
	Kwargs   map[string]any  `json:"kwargs" db:"kwargs"`
	Message  string          `json:"message" db:"message"`
}

// ──────────────────── ScanHistory ────────────────────

// ScanTargetKind identifies what a scan-history row refers to.
type ScanTargetKind string

const (
	ScanTargetChannel  ScanTargetKind = "channel"
	ScanTargetPlaylist ScanTargetKind = "playlist"
)

type ScanHistory struct {
	ID       uuid.UUID      `json:"id" db:"id"`
	Kind     ScanTargetKind `json:"kind" db:"kind"`
	TargetID uuid.UUID      `json:"target_id" db:"target_id"`
	Inserted time.Time      `json:"inserted" db:"inserted"`
}

// ──────────────────── VideoBlocked ────────────────────

// VideoBlocked bars (re-)creation of a Video with a matching provider id
// during ingest. Existing Video rows are unaffected.
type VideoBlocked struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Reason     string    `json:"reason" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ──────────────────── VideoHistory ────────────────────

// VideoHistory snapshots title/description/privacy before a change.
type VideoHistory struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	VideoID       uuid.UUID     `json:"video_id" db:"video_id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description" db:"description"`
	PrivacyStatus PrivacyStatus `json:"privacy_status" db:"privacy_status"`
	Inserted      time.Time     `json:"inserted" db:"inserted"`
}

// ──────────────────── Highlight / DurationSkip ────────────────────

type Highlight struct {
	ID      uuid.UUID `json:"id" db:"id"`
	VideoID uuid.UUID `json:"video_id" db:"video_id"`
	Start   int       `json:"start" db:"start_seconds"`
	End     int       `json:"end" db:"end_seconds"`
	Note    string    `json:"note" db:"note"`
}

type DurationSkip struct {
	ID      uuid.UUID `json:"id" db:"id"`
	VideoID uuid.UUID `json:"video_id" db:"video_id"`
	Start   int       `json:"start" db:"start_seconds"`
	End     int       `json:"end" db:"end_seconds"`
}
