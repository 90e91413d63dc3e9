// Package notifications posts JSON messages to the configured endpoint.
// Delivery failures are logged and swallowed; the archive never blocks on
// a notification.
package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Kind identifies one notification type with its own enable flag.
type Kind string

const (
	KindVideoDownloaded        Kind = "video_downloaded"
	KindPlaylistDisabled       Kind = "playlist_disabled"
	KindChannelStatusChanged   Kind = "channel_status_changed"
	KindFullArchivingStarted   Kind = "full_archiving_started"
	KindFullArchivingCompleted Kind = "full_archiving_completed"
	KindVideoAddedToPlaylist   Kind = "video_added_to_playlist"
	KindVideoRemovedFromPlaylist Kind = "video_removed_from_playlist"
	KindVideoReaddedToPlaylist Kind = "video_readded_to_playlist"
	KindNoVideosArchivedToday  Kind = "no_videos_archived_today"
	KindMp4ConversionCompleted Kind = "mp4_conversion_completed"
)

// Notifier sends {title, message, priority} payloads for enabled kinds.
type Notifier struct {
	url     string
	client  *http.Client
	enabled map[Kind]bool
}

// New creates a notifier with every kind enabled. An empty URL disables
// all sending.
func New(url string) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		enabled: map[Kind]bool{
			KindVideoDownloaded:          true,
			KindPlaylistDisabled:         true,
			KindChannelStatusChanged:     true,
			KindFullArchivingStarted:     true,
			KindFullArchivingCompleted:   true,
			KindVideoAddedToPlaylist:     true,
			KindVideoRemovedFromPlaylist: true,
			KindVideoReaddedToPlaylist:   true,
			KindNoVideosArchivedToday:    true,
			KindMp4ConversionCompleted:   true,
		},
	}
}

// SetEnabled flips a single kind's enable flag.
func (n *Notifier) SetEnabled(kind Kind, enabled bool) {
	n.enabled[kind] = enabled
}

// Send posts the notification when its kind is enabled. Errors never
// propagate to the caller.
func (n *Notifier) Send(kind Kind, title, message string, priority int) {
	if n == nil || n.url == "" || !n.enabled[kind] {
		return
	}
	payload := map[string]any{
		"title":    title,
		"message":  message,
		"priority": priority,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Notify: marshal %s: %v", kind, err)
		return
	}
	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("Notify: post %s: %v", kind, err)
		return
	}
	defer resp.Body.Close()
	io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Printf("Notify: %s returned status %d", kind, resp.StatusCode)
	}
}

// Sendf is Send with a formatted message at normal priority.
func (n *Notifier) Sendf(kind Kind, title, format string, args ...any) {
	n.Send(kind, title, fmt.Sprintf(format, args...), 0)
}
