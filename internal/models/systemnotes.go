package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// SystemNotes is the open key-value bag carried on every Video. Known keys
// get typed accessors below; anything else rides along untouched so older
// rows keep whatever was written into them.
type SystemNotes map[string]any

const (
	noteDownloads         = "downloads"
	noteUpdateAutomated   = "update_video_details_automated"
	noteSponsorblock      = "sponsorblock-loaded"
	noteProxiesAttempted  = "proxies_attempted"
	noteWasLive           = "video_was_live_at_last_attempt"
	noteMaxQualityUpgrade = "max_quality_upgraded"
	noteUVDQualityChanged = "uvd_max_quality_changed"
)

// SetLatestDownloadStats appends a fresh stats entry to the downloads list.
func (n *SystemNotes) SetLatestDownloadStats(kv map[string]any) {
	n.ensure()
	entry := map[string]any{}
	for k, v := range kv {
		entry[k] = normalizeNoteValue(v)
	}
	(*n)[noteDownloads] = append(n.Downloads(), entry)
}

// AppendToLatestDownloadStats merges keys into the most recent downloads
// entry. With no prior entry it behaves like SetLatestDownloadStats.
func (n *SystemNotes) AppendToLatestDownloadStats(kv map[string]any) {
	downloads := n.Downloads()
	if len(downloads) == 0 {
		n.SetLatestDownloadStats(kv)
		return
	}
	latest := downloads[len(downloads)-1]
	for k, v := range kv {
		latest[k] = normalizeNoteValue(v)
	}
	n.ensure()
	(*n)[noteDownloads] = downloads
}

// Downloads returns the append-only download stats list.
func (n SystemNotes) Downloads() []map[string]any {
	raw, ok := n[noteDownloads]
	if !ok {
		return nil
	}
	var out []map[string]any
	switch list := raw.(type) {
	case []map[string]any:
		return list
	case []any:
		for _, item := range list {
			if m := cast.ToStringMap(item); m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

// LatestDownload returns the most recent download stats entry, or nil.
func (n SystemNotes) LatestDownload() map[string]any {
	downloads := n.Downloads()
	if len(downloads) == 0 {
		return nil
	}
	return downloads[len(downloads)-1]
}

// LogUpdateVideoDetails records one metadata refresh outcome keyed by time.
func (n *SystemNotes) LogUpdateVideoDetails(at time.Time, result string) {
	n.ensure()
	m := cast.ToStringMapString((*n)[noteUpdateAutomated])
	if m == nil {
		m = map[string]string{}
	}
	m[at.UTC().Format(time.RFC3339)] = result
	(*n)[noteUpdateAutomated] = m
}

// SponsorblockLoadCount returns how many sponsorblock loads are recorded.
func (n SystemNotes) SponsorblockLoadCount() int {
	return len(cast.ToSlice(n[noteSponsorblock]))
}

// MarkSponsorblockLoaded appends a load timestamp.
func (n *SystemNotes) MarkSponsorblockLoaded(at time.Time) {
	n.ensure()
	list := cast.ToSlice((*n)[noteSponsorblock])
	(*n)[noteSponsorblock] = append(list, at.UTC().Format(time.RFC3339))
}

// MarkProxyAttempted appends a proxy string to the attempted list.
func (n *SystemNotes) MarkProxyAttempted(proxy string) {
	n.ensure()
	list := cast.ToSlice((*n)[noteProxiesAttempted])
	(*n)[noteProxiesAttempted] = append(list, proxy)
}

// WasLiveAtLastAttempt reports the livestream-retry flag.
func (n SystemNotes) WasLiveAtLastAttempt() bool {
	return cast.ToBool(n[noteWasLive])
}

// SetWasLiveAtLastAttempt sets or clears the livestream-retry flag.
func (n *SystemNotes) SetWasLiveAtLastAttempt(v bool) {
	n.ensure()
	if v {
		(*n)[noteWasLive] = true
	} else {
		delete(*n, noteWasLive)
	}
}

// MarkMaxQualityUpgraded stamps the redownload-for-quality marker.
func (n *SystemNotes) MarkMaxQualityUpgraded(at time.Time) {
	n.ensure()
	(*n)[noteMaxQualityUpgrade] = at.UTC().Format(time.RFC3339)
}

// MarkUVDMaxQualityChanged stamps the at-max-quality regression marker.
func (n *SystemNotes) MarkUVDMaxQualityChanged(at time.Time) {
	n.ensure()
	(*n)[noteUVDQualityChanged] = at.UTC().Format(time.RFC3339)
}

func (n *SystemNotes) ensure() {
	if *n == nil {
		*n = SystemNotes{}
	}
}

// normalizeNoteValue stores timestamps as ISO-8601 strings so the bag
// round-trips through JSON without type drift.
func normalizeNoteValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

// ──────────────────── sql plumbing ────────────────────

func (n SystemNotes) Value() (driver.Value, error) {
	if n == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(n)
}

func (n *SystemNotes) Scan(src any) error {
	return scanJSON(src, n, "system_notes")
}

func (f Formats) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

func (f *Formats) Scan(src any) error {
	return scanJSON(src, f, "dlp_formats")
}

func scanJSON(src, dest any, what string) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(data, dest)
	case string:
		return json.Unmarshal([]byte(data), dest)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, what)
	}
}
