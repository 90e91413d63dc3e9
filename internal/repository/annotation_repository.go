package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

// AnnotationRepository stores the time-range annotations on videos:
// highlights and duration skips.
type AnnotationRepository struct {
	db *sql.DB
}

func NewAnnotationRepository(db *sql.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

func (r *AnnotationRepository) AddHighlight(h *models.Highlight) error {
	h.ID = uuid.New()
	_, err := r.db.Exec(`INSERT INTO highlights (id, video_id, start_seconds, end_seconds, note)
		VALUES ($1, $2, $3, $4, $5)`, h.ID, h.VideoID, h.Start, h.End, h.Note)
	return err
}

func (r *AnnotationRepository) ListHighlights(videoID uuid.UUID) ([]*models.Highlight, error) {
	rows, err := r.db.Query(`SELECT id, video_id, start_seconds, end_seconds, note
		FROM highlights WHERE video_id = $1 ORDER BY start_seconds`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Highlight
	for rows.Next() {
		h := &models.Highlight{}
		if err := rows.Scan(&h.ID, &h.VideoID, &h.Start, &h.End, &h.Note); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReplaceHighlights swaps the video's highlight set atomically. The
// metadata refresher calls this with the provider's chapter list.
func (r *AnnotationRepository) ReplaceHighlights(videoID uuid.UUID, highlights []*models.Highlight) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM highlights WHERE video_id = $1`, videoID); err != nil {
		return err
	}
	for _, h := range highlights {
		h.ID = uuid.New()
		h.VideoID = videoID
		if _, err := tx.Exec(`INSERT INTO highlights (id, video_id, start_seconds, end_seconds, note)
			VALUES ($1, $2, $3, $4, $5)`, h.ID, h.VideoID, h.Start, h.End, h.Note); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *AnnotationRepository) AddDurationSkip(s *models.DurationSkip) error {
	s.ID = uuid.New()
	_, err := r.db.Exec(`INSERT INTO duration_skips (id, video_id, start_seconds, end_seconds)
		VALUES ($1, $2, $3, $4)`, s.ID, s.VideoID, s.Start, s.End)
	return err
}

// ReplaceDurationSkips swaps the video's skip ranges atomically.
func (r *AnnotationRepository) ReplaceDurationSkips(videoID uuid.UUID, skips []*models.DurationSkip) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM duration_skips WHERE video_id = $1`, videoID); err != nil {
		return err
	}
	for _, s := range skips {
		s.ID = uuid.New()
		s.VideoID = videoID
		if _, err := tx.Exec(`INSERT INTO duration_skips (id, video_id, start_seconds, end_seconds)
			VALUES ($1, $2, $3, $4)`, s.ID, s.VideoID, s.Start, s.End); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *AnnotationRepository) ListDurationSkips(videoID uuid.UUID) ([]*models.DurationSkip, error) {
	rows, err := r.db.Query(`SELECT id, video_id, start_seconds, end_seconds
		FROM duration_skips WHERE video_id = $1 ORDER BY start_seconds`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DurationSkip
	for rows.Next() {
		s := &models.DurationSkip{}
		if err := rows.Scan(&s.ID, &s.VideoID, &s.Start, &s.End); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
