package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

type PlaylistItemRepository struct {
	db *sql.DB
}

func NewPlaylistItemRepository(db *sql.DB) *PlaylistItemRepository {
	return &PlaylistItemRepository{db: db}
}

func (r *PlaylistItemRepository) scan(row interface{ Scan(...any) error }) (*models.PlaylistItem, error) {
	pi := &models.PlaylistItem{}
	err := row.Scan(&pi.ID, &pi.PlaylistID, &pi.VideoID, &pi.DisplayOrder,
		&pi.Download, &pi.ManuallyAdded, &pi.MissingFromPlaylistOnProvider, &pi.CreatedAt)
	return pi, err
}

const playlistItemColumns = `id, playlist_id, video_id, display_order,
	download, manually_added, missing_from_playlist_on_provider, created_at`

// Get returns the edge between a playlist and a video, nil when absent.
func (r *PlaylistItemRepository) Get(playlistID, videoID uuid.UUID) (*models.PlaylistItem, error) {
	row := r.db.QueryRow(`SELECT `+playlistItemColumns+` FROM playlist_items
		WHERE playlist_id = $1 AND video_id = $2`, playlistID, videoID)
	pi, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return pi, err
}

// Create inserts a new membership edge at the given display order.
func (r *PlaylistItemRepository) Create(pi *models.PlaylistItem) error {
	pi.ID = uuid.New()
	return r.db.QueryRow(`INSERT INTO playlist_items (`+playlistItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		RETURNING created_at`,
		pi.ID, pi.PlaylistID, pi.VideoID, pi.DisplayOrder,
		pi.Download, pi.ManuallyAdded, pi.MissingFromPlaylistOnProvider).
		Scan(&pi.CreatedAt)
}

// ListByPlaylist returns all membership edges in display order.
func (r *PlaylistItemRepository) ListByPlaylist(playlistID uuid.UUID) ([]*models.PlaylistItem, error) {
	rows, err := r.db.Query(`SELECT `+playlistItemColumns+` FROM playlist_items
		WHERE playlist_id = $1 ORDER BY display_order`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.PlaylistItem
	for rows.Next() {
		pi, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

// SetDownload flips the per-edge download flag.
func (r *PlaylistItemRepository) SetDownload(id uuid.UUID, download bool) error {
	_, err := r.db.Exec(`UPDATE playlist_items SET download = $2 WHERE id = $1`, id, download)
	return err
}

// SetDisplayOrder moves the edge to a new position.
func (r *PlaylistItemRepository) SetDisplayOrder(id uuid.UUID, order int) error {
	_, err := r.db.Exec(`UPDATE playlist_items SET display_order = $2 WHERE id = $1`, id, order)
	return err
}

// SetMissing marks or clears the missing-from-provider flag. Clearing also
// clears manually_added, since the provider now vouches for the edge.
func (r *PlaylistItemRepository) SetMissing(id uuid.UUID, missing bool) error {
	if missing {
		_, err := r.db.Exec(`UPDATE playlist_items
			SET missing_from_playlist_on_provider = TRUE WHERE id = $1`, id)
		return err
	}
	_, err := r.db.Exec(`UPDATE playlist_items
		SET missing_from_playlist_on_provider = FALSE, manually_added = FALSE
		WHERE id = $1`, id)
	return err
}

// SetManuallyAdded marks or clears the manual-addition flag.
func (r *PlaylistItemRepository) SetManuallyAdded(id uuid.UUID, manual bool) error {
	_, err := r.db.Exec(`UPDATE playlist_items SET manually_added = $2 WHERE id = $1`, id, manual)
	return err
}

// Delete removes the membership edge.
func (r *PlaylistItemRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM playlist_items WHERE id = $1`, id)
	return err
}
