package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/provider"
)

func TestSkipPlaylistEntryPlaceholders(t *testing.T) {
	assert.True(t, skipPlaylistEntry(provider.PlaylistEntry{Title: "Untitled"}),
		"an entry without a provider id cannot become a video")
	assert.True(t, skipPlaylistEntry(provider.PlaylistEntry{ID: "a1", Title: "[Private video]"}))
	assert.True(t, skipPlaylistEntry(provider.PlaylistEntry{ID: "a2", Title: "[deleted video]"}))
	assert.False(t, skipPlaylistEntry(provider.PlaylistEntry{ID: "a3", Title: "A Real Upload"}))
}

func TestDepartureNoticeDistinguishesDeletion(t *testing.T) {
	deleted := departureNotice(true, "Some Video", "Some Playlist")
	flagged := departureNotice(false, "Some Video", "Some Playlist")
	assert.Equal(t, "Some Video was removed from Some Playlist", deleted)
	assert.Equal(t, "Some Video is missing from Some Playlist on the provider", flagged)
}

func TestDesiredItemDownload(t *testing.T) {
	playlist := &models.Playlist{TitleSkips: "trailer"}

	permitted := &models.Video{Title: "Full Episode", PermitDownload: true}
	assert.True(t, desiredItemDownload(playlist, permitted))

	skipped := &models.Video{Title: "Official Trailer", PermitDownload: true}
	assert.False(t, desiredItemDownload(playlist, skipped))

	denied := &models.Video{Title: "Full Episode", PermitDownload: false}
	assert.False(t, desiredItemDownload(playlist, denied))
}
