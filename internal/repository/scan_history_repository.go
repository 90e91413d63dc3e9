package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

type ScanHistoryRepository struct {
	db *sql.DB
}

func NewScanHistoryRepository(db *sql.DB) *ScanHistoryRepository {
	return &ScanHistoryRepository{db: db}
}

// Record stores one scan of a channel or playlist.
func (r *ScanHistoryRepository) Record(kind models.ScanTargetKind, targetID uuid.UUID) error {
	_, err := r.db.Exec(`INSERT INTO scan_history (id, kind, target_id, inserted)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)`, uuid.New(), kind, targetID)
	return err
}

// RecentlyScanned reports whether the target was scanned within the window.
// It is the rescan-block predicate for the scheduler.
func (r *ScanHistoryRepository) RecentlyScanned(kind models.ScanTargetKind, targetID uuid.UUID, window time.Duration) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM scan_history
		WHERE kind = $1 AND target_id = $2 AND inserted >= $3`,
		kind, targetID, time.Now().Add(-window)).Scan(&n)
	return n > 0, err
}

// LastScan returns the most recent scan time for the target, or nil.
func (r *ScanHistoryRepository) LastScan(kind models.ScanTargetKind, targetID uuid.UUID) (*time.Time, error) {
	var t sql.NullTime
	err := r.db.QueryRow(`SELECT MAX(inserted) FROM scan_history
		WHERE kind = $1 AND target_id = $2`, kind, targetID).Scan(&t)
	if err != nil || !t.Valid {
		return nil, err
	}
	return &t.Time, nil
}
