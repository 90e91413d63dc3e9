package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

type ChannelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelColumns = `id, provider_id, name, status,
	index_videos, index_shorts, index_livestreams,
	download_videos, download_shorts, download_livestreams,
	quality, scanner_schedule, full_archive, slow_full_archive,
	full_archive_after, full_index_after, full_archive_cutoff,
	fully_indexed, fully_indexed_shorts, fully_indexed_livestreams,
	swap_index_videos_after, swap_index_shorts_after, swap_index_livestreams_after,
	force_next_downloads, skip_next_downloads, title_forces, title_skips,
	duration_minimum_videos, duration_maximum_videos,
	duration_minimum_livestreams, duration_maximum_livestreams,
	needs_cookies, convert_videos_to_mp3, mirror_playlists,
	block_rescan_window_hours, send_download_notification,
	directory_schema, video_directory_schema, video_filename_schema,
	created_at, updated_at`

func scanChannel(row interface{ Scan(...any) error }) (*models.Channel, error) {
	c := &models.Channel{}
	err := row.Scan(&c.ID, &c.ProviderID, &c.Name, &c.Status,
		&c.IndexVideos, &c.IndexShorts, &c.IndexLivestreams,
		&c.DownloadVideos, &c.DownloadShorts, &c.DownloadLivestreams,
		&c.Quality, &c.ScannerSchedule, &c.FullArchive, &c.SlowFullArchive,
		&c.FullArchiveAfter, &c.FullIndexAfter, &c.FullArchiveCutoff,
		&c.FullyIndexed, &c.FullyIndexedShorts, &c.FullyIndexedLivestreams,
		&c.SwapIndexVideosAfter, &c.SwapIndexShortsAfter, &c.SwapIndexLivestreamsAfter,
		&c.ForceNextDownloads, &c.SkipNextDownloads, &c.TitleForces, &c.TitleSkips,
		&c.DurationMinimumVideos, &c.DurationMaximumVideos,
		&c.DurationMinimumLivestreams, &c.DurationMaximumLivestreams,
		&c.NeedsCookies, &c.ConvertVideosToMp3, &c.MirrorPlaylists,
		&c.BlockRescanWindowHours, &c.SendDownloadNotification,
		&c.DirectorySchema, &c.VideoDirectorySchema, &c.VideoFilenameSchema,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *ChannelRepository) GetByID(id uuid.UUID) (*models.Channel, error) {
	row := r.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	c, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("channel not found")
	}
	return c, err
}

func (r *ChannelRepository) GetByProviderID(providerID string) (*models.Channel, error) {
	row := r.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE provider_id = $1`, providerID)
	c, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *ChannelRepository) list(query string, args ...any) ([]*models.Channel, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListScheduled returns active channels with a non-empty scanner schedule.
func (r *ChannelRepository) ListScheduled() ([]*models.Channel, error) {
	return r.list(`SELECT ` + channelColumns + ` FROM channels
		WHERE status = 'active' AND scanner_schedule != '' ORDER BY name`)
}

// ListFullArchive returns active channels with full archiving turned on.
func (r *ChannelRepository) ListFullArchive() ([]*models.Channel, error) {
	return r.list(`SELECT ` + channelColumns + ` FROM channels
		WHERE status = 'active' AND full_archive = TRUE ORDER BY name`)
}

// ListFlagSwapsDue returns channels with any date-gated flag swap that has
// arrived by now.
func (r *ChannelRepository) ListFlagSwapsDue(now time.Time) ([]*models.Channel, error) {
	return r.list(`SELECT `+channelColumns+` FROM channels
		WHERE status = 'active' AND (
			full_archive_after <= $1 OR full_index_after <= $1 OR
			swap_index_videos_after <= $1 OR swap_index_shorts_after <= $1 OR
			swap_index_livestreams_after <= $1)
		ORDER BY name`, now)
}

// Save writes all mutable fields and enforces the channel invariants:
// no indexing flags means no schedule, enabling full archive clears its
// date gate, and a non-active status forces everything off.
func (r *ChannelRepository) Save(c *models.Channel) error {
	if c.Status != models.ChannelActive {
		c.ScannerSchedule = ""
		c.IndexVideos, c.IndexShorts, c.IndexLivestreams = false, false, false
		c.DownloadVideos, c.DownloadShorts, c.DownloadLivestreams = false, false, false
		c.FullArchive, c.SlowFullArchive = false, false
	}
	if !c.IndexingEnabled() {
		c.ScannerSchedule = ""
	}
	if c.FullArchive {
		c.FullArchiveAfter = nil
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
		query := `INSERT INTO channels (` + channelColumns + `)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
				$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,
				CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			RETURNING created_at, updated_at`
		return r.db.QueryRow(query, c.ID, c.ProviderID, c.Name, c.Status,
			c.IndexVideos, c.IndexShorts, c.IndexLivestreams,
			c.DownloadVideos, c.DownloadShorts, c.DownloadLivestreams,
			c.Quality, c.ScannerSchedule, c.FullArchive, c.SlowFullArchive,
			c.FullArchiveAfter, c.FullIndexAfter, c.FullArchiveCutoff,
			c.FullyIndexed, c.FullyIndexedShorts, c.FullyIndexedLivestreams,
			c.SwapIndexVideosAfter, c.SwapIndexShortsAfter, c.SwapIndexLivestreamsAfter,
			c.ForceNextDownloads, c.SkipNextDownloads, c.TitleForces, c.TitleSkips,
			c.DurationMinimumVideos, c.DurationMaximumVideos,
			c.DurationMinimumLivestreams, c.DurationMaximumLivestreams,
			c.NeedsCookies, c.ConvertVideosToMp3, c.MirrorPlaylists,
			c.BlockRescanWindowHours, c.SendDownloadNotification,
			c.DirectorySchema, c.VideoDirectorySchema, c.VideoFilenameSchema).
			Scan(&c.CreatedAt, &c.UpdatedAt)
	}

	// Changing the archive cutoff invalidates the fully-indexed markers.
	var prevCutoff *time.Time
	if err := r.db.QueryRow(`SELECT full_archive_cutoff FROM channels WHERE id = $1`, c.ID).
		Scan(&prevCutoff); err == nil {
		if !timePtrEqual(prevCutoff, c.FullArchiveCutoff) {
			c.FullyIndexed, c.FullyIndexedShorts, c.FullyIndexedLivestreams = false, false, false
		}
	}

	query := `UPDATE channels SET provider_id=$2, name=$3, status=$4,
		index_videos=$5, index_shorts=$6, index_livestreams=$7,
		download_videos=$8, download_shorts=$9, download_livestreams=$10,
		quality=$11, scanner_schedule=$12, full_archive=$13, slow_full_archive=$14,
		full_archive_after=$15, full_index_after=$16, full_archive_cutoff=$17,
		fully_indexed=$18, fully_indexed_shorts=$19, fully_indexed_livestreams=$20,
		swap_index_videos_after=$21, swap_index_shorts_after=$22, swap_index_livestreams_after=$23,
		force_next_downloads=$24, skip_next_downloads=$25, title_forces=$26, title_skips=$27,
		duration_minimum_videos=$28, duration_maximum_videos=$29,
		duration_minimum_livestreams=$30, duration_maximum_livestreams=$31,
		needs_cookies=$32, convert_videos_to_mp3=$33, mirror_playlists=$34,
		block_rescan_window_hours=$35, send_download_notification=$36,
		directory_schema=$37, video_directory_schema=$38, video_filename_schema=$39,
		updated_at=CURRENT_TIMESTAMP
		WHERE id=$1`
	_, err := r.db.Exec(query, c.ID, c.ProviderID, c.Name, c.Status,
		c.IndexVideos, c.IndexShorts, c.IndexLivestreams,
		c.DownloadVideos, c.DownloadShorts, c.DownloadLivestreams,
		c.Quality, c.ScannerSchedule, c.FullArchive, c.SlowFullArchive,
		c.FullArchiveAfter, c.FullIndexAfter, c.FullArchiveCutoff,
		c.FullyIndexed, c.FullyIndexedShorts, c.FullyIndexedLivestreams,
		c.SwapIndexVideosAfter, c.SwapIndexShortsAfter, c.SwapIndexLivestreamsAfter,
		c.ForceNextDownloads, c.SkipNextDownloads, c.TitleForces, c.TitleSkips,
		c.DurationMinimumVideos, c.DurationMaximumVideos,
		c.DurationMinimumLivestreams, c.DurationMaximumLivestreams,
		c.NeedsCookies, c.ConvertVideosToMp3, c.MirrorPlaylists,
		c.BlockRescanWindowHours, c.SendDownloadNotification,
		c.DirectorySchema, c.VideoDirectorySchema, c.VideoFilenameSchema)
	return err
}

// DecrementForceNextDownloads atomically consumes one force credit.
// Returns true when a credit was consumed.
func (r *ChannelRepository) DecrementForceNextDownloads(id uuid.UUID) (bool, error) {
	res, err := r.db.Exec(`UPDATE channels
		SET force_next_downloads = force_next_downloads - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND force_next_downloads > 0`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DecrementSkipNextDownloads atomically consumes one skip credit.
func (r *ChannelRepository) DecrementSkipNextDownloads(id uuid.UUID) (bool, error) {
	res, err := r.db.Exec(`UPDATE channels
		SET skip_next_downloads = skip_next_downloads - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND skip_next_downloads > 0`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
