package repository

import (
	"database/sql"

	"github.com/google/uuid"
)

type BlockedRepository struct {
	db *sql.DB
}

func NewBlockedRepository(db *sql.DB) *BlockedRepository {
	return &BlockedRepository{db: db}
}

// IsBlocked reports whether the provider id is on the denylist. The list
// only bars creation of new Video rows during ingest; existing rows are
// unaffected.
func (r *BlockedRepository) IsBlocked(providerID string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM video_blocked WHERE provider_id = $1`,
		providerID).Scan(&n)
	return n > 0, err
}

// Block adds a provider id to the denylist.
func (r *BlockedRepository) Block(providerID, reason string) error {
	_, err := r.db.Exec(`INSERT INTO video_blocked (id, provider_id, reason, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (provider_id) DO NOTHING`, uuid.New(), providerID, reason)
	return err
}

// Unblock removes a provider id from the denylist.
func (r *BlockedRepository) Unblock(providerID string) error {
	_, err := r.db.Exec(`DELETE FROM video_blocked WHERE provider_id = $1`, providerID)
	return err
}
