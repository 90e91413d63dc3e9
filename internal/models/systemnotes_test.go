package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadStatsAppend(t *testing.T) {
	var notes SystemNotes

	notes.SetLatestDownloadStats(map[string]any{"task_source": "manual"})
	notes.AppendToLatestDownloadStats(map[string]any{"download_started": time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})

	latest := notes.LatestDownload()
	require.NotNil(t, latest)
	assert.Equal(t, "manual", latest["task_source"])
	assert.Equal(t, "2026-01-02T03:04:05Z", latest["download_started"])
}

func TestSetLatestDownloadStatsStartsNewEntry(t *testing.T) {
	var notes SystemNotes
	notes.SetLatestDownloadStats(map[string]any{"task_source": "first"})
	notes.SetLatestDownloadStats(map[string]any{"task_source": "second"})

	downloads := notes.Downloads()
	require.Len(t, downloads, 2)
	assert.Equal(t, "first", downloads[0]["task_source"])
	assert.Equal(t, "second", downloads[1]["task_source"])
}

func TestAppendWithoutPriorEntryCreatesOne(t *testing.T) {
	var notes SystemNotes
	notes.AppendToLatestDownloadStats(map[string]any{"k": "v"})
	require.Len(t, notes.Downloads(), 1)
}

func TestWasLiveFlag(t *testing.T) {
	var notes SystemNotes
	assert.False(t, notes.WasLiveAtLastAttempt())

	notes.SetWasLiveAtLastAttempt(true)
	assert.True(t, notes.WasLiveAtLastAttempt())

	notes.SetWasLiveAtLastAttempt(false)
	assert.False(t, notes.WasLiveAtLastAttempt())
	_, present := notes["video_was_live_at_last_attempt"]
	assert.False(t, present, "cleared flag should be removed, not set to false")
}

func TestUnknownKeysSurviveRoundTrip(t *testing.T) {
	notes := SystemNotes{"some_legacy_key": "kept"}
	notes.SetWasLiveAtLastAttempt(true)

	raw, err := notes.Value()
	require.NoError(t, err)

	var back SystemNotes
	require.NoError(t, back.Scan(raw))
	assert.Equal(t, "kept", back["some_legacy_key"])
	assert.True(t, back.WasLiveAtLastAttempt())
}

func TestDownloadsSurviveJSONRoundTrip(t *testing.T) {
	var notes SystemNotes
	notes.SetLatestDownloadStats(map[string]any{"task_source": "x"})

	raw, err := json.Marshal(notes)
	require.NoError(t, err)
	var back SystemNotes
	require.NoError(t, json.Unmarshal(raw, &back))

	back.AppendToLatestDownloadStats(map[string]any{"extra": "y"})
	latest := back.LatestDownload()
	require.NotNil(t, latest)
	assert.Equal(t, "x", latest["task_source"])
	assert.Equal(t, "y", latest["extra"])
}

func TestLogUpdateVideoDetails(t *testing.T) {
	var notes SystemNotes
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	notes.LogUpdateVideoDetails(at, "ok")
	notes.LogUpdateVideoDetails(at.Add(time.Hour), "private")

	m, ok := notes["update_video_details_automated"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "ok", m["2026-05-01T12:00:00Z"])
	assert.Equal(t, "private", m["2026-05-01T13:00:00Z"])
}

func TestTitleListMatching(t *testing.T) {
	c := &Channel{
		TitleForces: "Live Show\nSpecial",
		TitleSkips:  "trailer\n\n  clip  ",
	}
	assert.True(t, c.TitleForceMatch("My LIVE show episode 4"))
	assert.False(t, c.TitleForceMatch("regular upload"))
	assert.True(t, c.TitleSkipMatch("Official Trailer"))
	assert.True(t, c.TitleSkipMatch("short CLIP"))
	assert.False(t, c.TitleSkipMatch("full movie"))

	empty := &Channel{}
	assert.False(t, empty.TitleForceMatch("anything"))
}

func TestVideoKind(t *testing.T) {
	v := &Video{}
	v.SetKind(KindShort)
	assert.Equal(t, KindShort, v.Kind())
	assert.True(t, v.IsShort)
	assert.False(t, v.IsVideo)

	v.SetKind(KindLivestream)
	assert.Equal(t, KindLivestream, v.Kind())
	assert.False(t, v.IsShort)
}

func TestDurationBoundsPerKind(t *testing.T) {
	c := &Channel{
		DurationMinimumVideos:      60,
		DurationMaximumVideos:      600,
		DurationMinimumLivestreams: 1200,
	}
	min, max := c.DurationBounds(KindVideo)
	assert.Equal(t, 60, min)
	assert.Equal(t, 600, max)

	min, max = c.DurationBounds(KindLivestream)
	assert.Equal(t, 1200, min)
	assert.Equal(t, 0, max)

	min, max = c.DurationBounds(KindShort)
	assert.Zero(t, min)
	assert.Zero(t, max)
}

func TestFormatsMaxHeight(t *testing.T) {
	f := Formats{{Height: 720}, {Height: 1080}, {Height: 0}}
	assert.Equal(t, 1080, f.MaxHeight())
	assert.Zero(t, Formats{}.MaxHeight())
}

func TestAtReportedMaxQuality(t *testing.T) {
	v := &Video{Quality: 1080, DlpFormats: Formats{{Height: 720}, {Height: 1080}}}
	assert.True(t, v.AtReportedMaxQuality())

	v.Quality = 720
	assert.False(t, v.AtReportedMaxQuality())

	// No reported formats means nothing to compare against.
	v.DlpFormats = nil
	assert.False(t, v.AtReportedMaxQuality())
}

func TestSponsorblockLoadTracking(t *testing.T) {
	var n SystemNotes
	assert.Zero(t, n.SponsorblockLoadCount())

	now := time.Now()
	n.MarkSponsorblockLoaded(now)
	n.MarkSponsorblockLoaded(now.Add(time.Hour))
	assert.Equal(t, 2, n.SponsorblockLoadCount())

	// The list survives a JSON round trip the way a DB read delivers it.
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	var back SystemNotes
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 2, back.SponsorblockLoadCount())
}

func TestMarkProxyAttempted(t *testing.T) {
	var n SystemNotes
	n.MarkProxyAttempted("socks5://proxy-a:1080")
	n.MarkProxyAttempted("socks5://proxy-b:1080")
	assert.Len(t, n["proxies_attempted"], 2)
}
