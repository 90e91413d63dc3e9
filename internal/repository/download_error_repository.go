package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

type DownloadErrorRepository struct {
	db *sql.DB
}

func NewDownloadErrorRepository(db *sql.DB) *DownloadErrorRepository {
	return &DownloadErrorRepository{db: db}
}

// Add records one failed download attempt. Kwargs are stored as JSON with
// any non-serializable values already stripped by the caller.
func (r *DownloadErrorRepository) Add(videoID uuid.UUID, kwargs map[string]any, message string) error {
	data, err := json.Marshal(kwargs)
	if err != nil {
		data = []byte("{}")
	}
	_, err = r.db.Exec(`INSERT INTO download_errors (id, video_id, inserted, kwargs, message)
		VALUES ($1, $2, CURRENT_TIMESTAMP, $3, $4)`, uuid.New(), videoID, data, message)
	return err
}

// CountForVideoSince counts errors recorded for the video at or after the
// given instant.
func (r *DownloadErrorRepository) CountForVideoSince(videoID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM download_errors
		WHERE video_id = $1 AND inserted >= $2`, videoID, since).Scan(&n)
	return n, err
}

// CountForVideo counts all errors ever recorded for the video.
func (r *DownloadErrorRepository) CountForVideo(videoID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM download_errors
		WHERE video_id = $1`, videoID).Scan(&n)
	return n, err
}

// ListForVideo returns the video's errors, newest first.
func (r *DownloadErrorRepository) ListForVideo(videoID uuid.UUID, limit int) ([]*models.DownloadError, error) {
	rows, err := r.db.Query(`SELECT id, video_id, inserted, kwargs, message
		FROM download_errors WHERE video_id = $1 ORDER BY inserted DESC LIMIT $2`, videoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DownloadError
	for rows.Next() {
		e := &models.DownloadError{}
		var kwargs []byte
		if err := rows.Scan(&e.ID, &e.VideoID, &e.Inserted, &kwargs, &e.Message); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(kwargs, &e.Kwargs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteForVideo purges the video's error history.
func (r *DownloadErrorRepository) DeleteForVideo(videoID uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM download_errors WHERE video_id = $1`, videoID)
	return err
}
