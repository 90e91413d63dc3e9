package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

type PlaylistRepository struct {
	db *sql.DB
}

func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

const playlistColumns = `id, provider_id, title, schedule, quality,
	restrict_to_assigned_channel, channel_id,
	title_skips, disable_when_string_found_in_video_title, sync_deletions,
	not_found_failures, hidden, next_playlist_id,
	videos_display_ordering, videos_playback_ordering,
	download_comments_on_index, convert_to_audio, video_indexing_add_by_title,
	created_at, updated_at`

func scanPlaylist(row interface{ Scan(...any) error }) (*models.Playlist, error) {
	p := &models.Playlist{}
	err := row.Scan(&p.ID, &p.ProviderID, &p.Title, &p.Schedule, &p.Quality,
		&p.RestrictToAssignedChannel, &p.ChannelID,
		&p.TitleSkips, &p.DisableWhenStringFoundInVideoTitle, &p.SyncDeletions,
		&p.NotFoundFailures, &p.Hidden, &p.NextPlaylistID,
		&p.VideosDisplayOrdering, &p.VideosPlaybackOrdering,
		&p.DownloadCommentsOnIndex, &p.ConvertToAudio, &p.VideoIndexingAddByTitle,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PlaylistRepository) GetByID(id uuid.UUID) (*models.Playlist, error) {
	row := r.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, id)
	p, err := scanPlaylist(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("playlist not found")
	}
	return p, err
}

func (r *PlaylistRepository) list(query string, args ...any) ([]*models.Playlist, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListScheduled returns visible playlists with a non-empty schedule.
func (r *PlaylistRepository) ListScheduled() ([]*models.Playlist, error) {
	return r.list(`SELECT ` + playlistColumns + ` FROM playlists
		WHERE hidden = FALSE AND schedule != '' ORDER BY title`)
}

// ListAll returns every playlist, visible first.
func (r *PlaylistRepository) ListAll() ([]*models.Playlist, error) {
	return r.list(`SELECT ` + playlistColumns + ` FROM playlists ORDER BY hidden, title`)
}

// Save writes all mutable fields and enforces the playlist invariants:
// a remote playlist cannot also be title-driven, an unassigned playlist
// has no schedule, hidden clears the automation fields, and the
// next-playlist chain stays acyclic.
func (r *PlaylistRepository) Save(p *models.Playlist) error {
	if p.ProviderID == "" {
		p.Schedule = ""
	} else {
		p.VideoIndexingAddByTitle = ""
		p.VideoIndexingAddByTitleLimitToChannels = nil
	}
	if p.Hidden {
		p.Schedule = ""
		p.VideoIndexingAddByTitle = ""
		p.DisableWhenStringFoundInVideoTitle = ""
	}
	if p.NextPlaylistID != nil {
		if err := r.checkChainAcyclic(p.ID, *p.NextPlaylistID); err != nil {
			return err
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
		query := `INSERT INTO playlists (` + playlistColumns + `)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
				CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			RETURNING created_at, updated_at`
		return r.db.QueryRow(query, p.ID, p.ProviderID, p.Title, p.Schedule, p.Quality,
			p.RestrictToAssignedChannel, p.ChannelID,
			p.TitleSkips, p.DisableWhenStringFoundInVideoTitle, p.SyncDeletions,
			p.NotFoundFailures, p.Hidden, p.NextPlaylistID,
			p.VideosDisplayOrdering, p.VideosPlaybackOrdering,
			p.DownloadCommentsOnIndex, p.ConvertToAudio, p.VideoIndexingAddByTitle).
			Scan(&p.CreatedAt, &p.UpdatedAt)
	}

	query := `UPDATE playlists SET provider_id=$2, title=$3, schedule=$4, quality=$5,
		restrict_to_assigned_channel=$6, channel_id=$7,
		title_skips=$8, disable_when_string_found_in_video_title=$9, sync_deletions=$10,
		not_found_failures=$11, hidden=$12, next_playlist_id=$13,
		videos_display_ordering=$14, videos_playback_ordering=$15,
		download_comments_on_index=$16, convert_to_audio=$17, video_indexing_add_by_title=$18,
		updated_at=CURRENT_TIMESTAMP
		WHERE id=$1`
	_, err := r.db.Exec(query, p.ID, p.ProviderID, p.Title, p.Schedule, p.Quality,
		p.RestrictToAssignedChannel, p.ChannelID,
		p.TitleSkips, p.DisableWhenStringFoundInVideoTitle, p.SyncDeletions,
		p.NotFoundFailures, p.Hidden, p.NextPlaylistID,
		p.VideosDisplayOrdering, p.VideosPlaybackOrdering,
		p.DownloadCommentsOnIndex, p.ConvertToAudio, p.VideoIndexingAddByTitle)
	return err
}

func (r *PlaylistRepository) checkChainAcyclic(start, next uuid.UUID) error {
	seen := map[uuid.UUID]bool{start: true}
	current := next
	for {
		if seen[current] {
			return fmt.Errorf("next_playlist chain contains a cycle at %s", current)
		}
		seen[current] = true
		var following *uuid.UUID
		err := r.db.QueryRow(`SELECT next_playlist_id FROM playlists WHERE id = $1`, current).
			Scan(&following)
		if err == sql.ErrNoRows || err != nil || following == nil {
			return nil
		}
		current = *following
	}
}

// IncrementNotFoundFailures atomically bumps the failure counter and
// returns the new value.
func (r *PlaylistRepository) IncrementNotFoundFailures(id uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(`UPDATE playlists
		SET not_found_failures = not_found_failures + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 RETURNING not_found_failures`, id).Scan(&n)
	return n, err
}

// ClearNotFoundFailures resets the counter after a successful sync.
func (r *PlaylistRepository) ClearNotFoundFailures(id uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE playlists
		SET not_found_failures = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND not_found_failures != 0`, id)
	return err
}

// ClearSchedule disables automated syncing of the playlist.
func (r *PlaylistRepository) ClearSchedule(id uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE playlists
		SET schedule = '', updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	return err
}

// AssignChannel sets the playlist's channel only when none is assigned yet.
func (r *PlaylistRepository) AssignChannel(id, channelID uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE playlists
		SET channel_id = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND channel_id IS NULL`, id, channelID)
	return err
}
