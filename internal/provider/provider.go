// Package provider wraps the external video provider. The concrete client
// shells out to yt-dlp; callers program against the Client interface.
package provider

import (
	"context"
	"time"
)

// VideoDetailsOptions tunes a metadata request.
type VideoDetailsOptions struct {
	Quiet         bool
	WriteInfoJSON bool
	CookiesFile   string
}

// VideoDetails is the provider's metadata for one video.
type VideoDetails struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Duration     int       `json:"duration"`
	UploadDate   string    `json:"upload_date"`
	ChannelID    string    `json:"channel_id"`
	Availability string    `json:"availability"`
	IsLive       bool      `json:"is_live"`
	WasLive      bool      `json:"was_live"`
	Chapters     []Chapter `json:"chapters"`
	Formats      []Format  `json:"formats"`
	InfoJSONPath string    `json:"-"`
}

// Chapter is one provider-reported chapter marker. SponsorBlock-marked
// segments arrive as chapters whose titles carry the "[SponsorBlock]"
// prefix.
type Chapter struct {
	Title string  `json:"title"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// Format mirrors one provider-reported download format.
type Format struct {
	FormatID   string `json:"format_id"`
	FormatNote string `json:"format_note"`
	Ext        string `json:"ext"`
	Height     int    `json:"height"`
	Width      int    `json:"width"`
	VCodec     string `json:"vcodec"`
	ACodec     string `json:"acodec"`
}

// MaxHeight returns the tallest height among the formats.
func MaxHeight(formats []Format) int {
	max := 0
	for _, f := range formats {
		if f.Height > max {
			max = f.Height
		}
	}
	return max
}

// PlaylistEntry is one member of a provider playlist listing.
type PlaylistEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
}

// PlaylistDetails is a provider playlist listing. A nil result from
// PlaylistDetails means the playlist was not found.
type PlaylistDetails struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ChannelID   string          `json:"channel_id"`
	Entries     []PlaylistEntry `json:"entries"`
}

// ChannelDetails is the provider's channel metadata.
type ChannelDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	UploaderID  string `json:"uploader_id"`
	Thumbnails  []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

// ChannelEntry is one upload in a channel listing.
type ChannelEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Duration   int    `json:"duration"`
	UploadDate string `json:"upload_date"`
}

// DownloadOptions tunes a download request.
type DownloadOptions struct {
	Quality          int  // target height; 0 means best available
	MaxQuality       bool // ignore Quality and take the best
	CookiesFile      string
	ProxyURL         string
	CacheDir         string
	RateLimitKBs     int
	WriteInfoJSON    bool
	WriteThumbnail   bool
	DownloadComments bool
}

// DownloadResult is what a completed fetch hands to the pipeline.
type DownloadResult struct {
	Filepath           string
	InfoJSONFilename   string
	ThumbnailFilename  string
	RequestedDownloads []RequestedDownload
	DownloadStarted    time.Time
	DownloadFinished   time.Time
}

// RequestedDownload describes one file the provider produced.
type RequestedDownload struct {
	Filepath   string `json:"filepath"`
	FormatID   string `json:"format_id"`
	FormatNote string `json:"format_note"`
	Ext        string `json:"ext"`
	Height     int    `json:"height"`
}

// Client is the provider contract consumed by the engine.
type Client interface {
	VideoDetails(ctx context.Context, url string, opts VideoDetailsOptions) (*VideoDetails, error)
	PlaylistDetails(ctx context.Context, url string) (*PlaylistDetails, error)
	ChannelDetails(ctx context.Context, url string) (*ChannelDetails, error)
	ChannelEntries(ctx context.Context, url string, limit int) ([]ChannelEntry, error)
	Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error)
	DownloadComments(ctx context.Context, url string, opts VideoDetailsOptions) (string, error)
}
