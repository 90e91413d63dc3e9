package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/models"
)

// ErrUnauthorizedDeletion guards against accidental video deletion; callers
// must pass the explicit allow flag to Delete.
var ErrUnauthorizedDeletion = errors.New("video deletion requires explicit authorization")

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, provider_id, channel_id, title, description, upload_date,
	duration, quality, file, audio, thumbnail, info_json, dlp_formats,
	format_id, format_note, privacy_status, at_max_quality, requested_max_quality,
	date_downloaded, starred, prevent_deletion, force_download, permit_download,
	needs_cookies, convert_to_audio, download_comments_on_index,
	is_video, is_short, is_livestream, system_notes,
	privacy_status_checks, last_privacy_status_check,
	title_locked, description_locked, sort_ordering, inserted, updated`

// videoColumnsV is videoColumns qualified for queries joining other tables.
const videoColumnsV = `v.id, v.provider_id, v.channel_id, v.title, v.description, v.upload_date,
	v.duration, v.quality, v.file, v.audio, v.thumbnail, v.info_json, v.dlp_formats,
	v.format_id, v.format_note, v.privacy_status, v.at_max_quality, v.requested_max_quality,
	v.date_downloaded, v.starred, v.prevent_deletion, v.force_download, v.permit_download,
	v.needs_cookies, v.convert_to_audio, v.download_comments_on_index,
	v.is_video, v.is_short, v.is_livestream, v.system_notes,
	v.privacy_status_checks, v.last_privacy_status_check,
	v.title_locked, v.description_locked, v.sort_ordering, v.inserted, v.updated`

func scanVideo(row interface{ Scan(...any) error }) (*models.Video, error) {
	v := &models.Video{}
	err := row.Scan(&v.ID, &v.ProviderID, &v.ChannelID, &v.Title, &v.Description, &v.UploadDate,
		&v.Duration, &v.Quality, &v.File, &v.Audio, &v.Thumbnail, &v.InfoJSON, &v.DlpFormats,
		&v.FormatID, &v.FormatNote, &v.PrivacyStatus, &v.AtMaxQuality, &v.RequestedMaxQuality,
		&v.DateDownloaded, &v.Starred, &v.PreventDeletion, &v.ForceDownload, &v.PermitDownload,
		&v.NeedsCookies, &v.ConvertToAudio, &v.DownloadCommentsOnIndex,
		&v.IsVideo, &v.IsShort, &v.IsLivestream, &v.SystemNotes,
		&v.PrivacyStatusChecks, &v.LastPrivacyStatusCheck,
		&v.TitleLocked, &v.DescriptionLocked, &v.SortOrdering, &v.Inserted, &v.Updated)
	return v, err
}

func (r *VideoRepository) GetByID(id uuid.UUID) (*models.Video, error) {
	row := r.db.QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video not found")
	}
	return v, err
}

// GetByProviderID returns nil without error when no row matches.
func (r *VideoRepository) GetByProviderID(providerID string) (*models.Video, error) {
	row := r.db.QueryRow(`SELECT `+videoColumns+` FROM videos WHERE provider_id = $1`, providerID)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// Save inserts or updates the video. On first write the inserted stamp and
// channel-scoped sort ordering are assigned; every write bumps updated.
// Title, description, or privacy changes snapshot the prior values into
// video_history within the same transaction.
func (r *VideoRepository) Save(v *models.Video) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
		if v.PrivacyStatus == "" {
			v.PrivacyStatus = models.PrivacyPublic
		}
		if v.ChannelID != nil {
			if err := tx.QueryRow(`SELECT COALESCE(MAX(sort_ordering), 0) + 1
				FROM videos WHERE channel_id = $1`, v.ChannelID).Scan(&v.SortOrdering); err != nil {
				return err
			}
		}
		err = tx.QueryRow(`INSERT INTO videos (`+videoColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
				$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,
				CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			RETURNING inserted, updated`,
			v.ID, v.ProviderID, v.ChannelID, v.Title, v.Description, v.UploadDate,
			v.Duration, v.Quality, v.File, v.Audio, v.Thumbnail, v.InfoJSON, v.DlpFormats,
			v.FormatID, v.FormatNote, v.PrivacyStatus, v.AtMaxQuality, v.RequestedMaxQuality,
			v.DateDownloaded, v.Starred, v.PreventDeletion, v.ForceDownload, v.PermitDownload,
			v.NeedsCookies, v.ConvertToAudio, v.DownloadCommentsOnIndex,
			v.IsVideo, v.IsShort, v.IsLivestream, v.SystemNotes,
			v.PrivacyStatusChecks, v.LastPrivacyStatusCheck,
			v.TitleLocked, v.DescriptionLocked, v.SortOrdering).
			Scan(&v.Inserted, &v.Updated)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	var prevTitle, prevDescription string
	var prevPrivacy models.PrivacyStatus
	if err := tx.QueryRow(`SELECT title, description, privacy_status
		FROM videos WHERE id = $1`, v.ID).Scan(&prevTitle, &prevDescription, &prevPrivacy); err != nil {
		return err
	}
	if prevTitle != v.Title || prevDescription != v.Description || prevPrivacy != v.PrivacyStatus {
		if _, err := tx.Exec(`INSERT INTO video_history (id, video_id, title, description, privacy_status, inserted)
			VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)`,
			uuid.New(), v.ID, prevTitle, prevDescription, prevPrivacy); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE videos SET provider_id=$2, channel_id=$3, title=$4, description=$5,
		upload_date=$6, duration=$7, quality=$8, file=$9, audio=$10, thumbnail=$11,
		info_json=$12, dlp_formats=$13, format_id=$14, format_note=$15, privacy_status=$16,
		at_max_quality=$17, requested_max_quality=$18, date_downloaded=$19, starred=$20,
		prevent_deletion=$21, force_download=$22, permit_download=$23, needs_cookies=$24,
		convert_to_audio=$25, download_comments_on_index=$26,
		is_video=$27, is_short=$28, is_livestream=$29, system_notes=$30,
		privacy_status_checks=$31, last_privacy_status_check=$32,
		title_locked=$33, description_locked=$34, sort_ordering=$35,
		updated=CURRENT_TIMESTAMP
		WHERE id=$1`,
		v.ID, v.ProviderID, v.ChannelID, v.Title, v.Description,
		v.UploadDate, v.Duration, v.Quality, v.File, v.Audio, v.Thumbnail,
		v.InfoJSON, v.DlpFormats, v.FormatID, v.FormatNote, v.PrivacyStatus,
		v.AtMaxQuality, v.RequestedMaxQuality, v.DateDownloaded, v.Starred,
		v.PreventDeletion, v.ForceDownload, v.PermitDownload, v.NeedsCookies,
		v.ConvertToAudio, v.DownloadCommentsOnIndex,
		v.IsVideo, v.IsShort, v.IsLivestream, v.SystemNotes,
		v.PrivacyStatusChecks, v.LastPrivacyStatusCheck,
		v.TitleLocked, v.DescriptionLocked, v.SortOrdering)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the video. Without allowDelete it refuses. With keepRecord
// the row survives but its downloaded state is reset; otherwise the row and
// its dependents are removed.
func (r *VideoRepository) Delete(id uuid.UUID, allowDelete, keepRecord bool) error {
	if !allowDelete {
		return ErrUnauthorizedDeletion
	}
	if keepRecord {
		_, err := r.db.Exec(`UPDATE videos SET
			quality = 0, at_max_quality = FALSE, privacy_status = 'public',
			file = '', audio = '', thumbnail = '', info_json = '',
			date_downloaded = NULL, updated = CURRENT_TIMESTAMP
			WHERE id = $1`, id)
		return err
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"download_errors", "video_history", "playlist_items", "highlights", "duration_skips"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE video_id = $1`, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM videos WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// CountDownloadedToday counts completed downloads for the local calendar day.
func (r *VideoRepository) CountDownloadedToday(now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM videos
		WHERE file != '' AND date_downloaded >= $1 AND date_downloaded < $2`,
		dayStart, dayStart.AddDate(0, 0, 1)).Scan(&n)
	return n, err
}

func (r *VideoRepository) list(query string, args ...any) ([]*models.Video, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListUndownloadedByChannel returns a channel's videos without a file and
// without any recorded download error, oldest upload first. A cutoff, when
// set, excludes uploads before it.
func (r *VideoRepository) ListUndownloadedByChannel(channelID uuid.UUID, cutoff *time.Time) ([]*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos v
		WHERE v.channel_id = $1 AND v.file = ''
		AND NOT EXISTS (SELECT 1 FROM download_errors de WHERE de.video_id = v.id)`
	args := []any{channelID}
	if cutoff != nil {
		query += ` AND v.upload_date >= $2`
		args = append(args, *cutoff)
	}
	query += ` ORDER BY v.upload_date ASC NULLS LAST`
	return r.list(query, args...)
}

// ListUndownloadedByPlaylist returns playlist member videos still marked for
// download that have no file and no download errors, oldest upload first.
func (r *VideoRepository) ListUndownloadedByPlaylist(playlistID uuid.UUID) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumnsV+` FROM videos v
		JOIN playlist_items pi ON pi.video_id = v.id
		WHERE pi.playlist_id = $1 AND pi.download = TRUE AND v.file = ''
		AND NOT EXISTS (SELECT 1 FROM download_errors de WHERE de.video_id = v.id)
		ORDER BY v.upload_date ASC NULLS LAST`, playlistID)
}

// ListErrorRetryCandidates returns videos whose most recent download error
// is older than the wait period, that still lack a file, and that have not
// hit the daily error cap or the hard attempt cap.
func (r *VideoRepository) ListErrorRetryCandidates(now time.Time, wait time.Duration, dailyCap, hardCap int) ([]*models.Video, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE v.file = ''
		AND EXISTS (SELECT 1 FROM download_errors de WHERE de.video_id = v.id)
		AND (SELECT MAX(de.inserted) FROM download_errors de WHERE de.video_id = v.id) < $1
		AND (SELECT COUNT(*) FROM download_errors de WHERE de.video_id = v.id AND de.inserted >= $2) < $3
		AND (SELECT COUNT(*) FROM download_errors de WHERE de.video_id = v.id) < $4
		ORDER BY v.upload_date ASC NULLS LAST`,
		now.Add(-wait), dayStart, dailyCap, hardCap)
}

// ListLiveRetryCandidates returns videos flagged as live at the last
// attempt whose flag is older than the retry window.
func (r *VideoRepository) ListLiveRetryCandidates(now time.Time, retryAfter time.Duration) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE (v.system_notes->>'video_was_live_at_last_attempt')::boolean = TRUE
		AND v.updated < $1
		ORDER BY v.upload_date ASC NULLS LAST`, now.Add(-retryAfter))
}

// ListMaxQualityLivenessCandidates returns recently downloaded videos that
// asked for max quality but were not at max when fetched.
func (r *VideoRepository) ListMaxQualityLivenessCandidates(now time.Time, window time.Duration) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE v.requested_max_quality = TRUE AND v.at_max_quality = FALSE
		AND v.file != '' AND v.date_downloaded < $1
		ORDER BY v.date_downloaded ASC`, now.Add(-window))
}

// ListNeedingPrivacyCheck returns downloaded videos whose privacy status
// has not been checked within the minimum age.
func (r *VideoRepository) ListNeedingPrivacyCheck(now time.Time, minAge time.Duration, limit int) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE v.file != ''
		AND (v.last_privacy_status_check IS NULL OR v.last_privacy_status_check < $1)
		ORDER BY v.last_privacy_status_check ASC NULLS FIRST
		LIMIT $2`, now.Add(-minAge), limit)
}

// ListForceCheckCandidates returns downloaded videos regardless of check
// age, least recently checked first.
func (r *VideoRepository) ListForceCheckCandidates(limit int) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE v.file != ''
		ORDER BY v.last_privacy_status_check ASC NULLS FIRST
		LIMIT $1`, limit)
}

// ListQualityUpgradeByChannel returns downloaded channel videos stored
// below the target quality that are not known to be at max.
func (r *VideoRepository) ListQualityUpgradeByChannel(channelID uuid.UUID, targetQuality, limit int) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumns+` FROM videos v
		WHERE v.channel_id = $1 AND v.file != ''
		AND v.quality < $2 AND v.at_max_quality = FALSE
		ORDER BY v.upload_date ASC NULLS LAST LIMIT $3`, channelID, targetQuality, limit)
}

// ListQualityUpgradeByPlaylist is ListQualityUpgradeByChannel for playlist
// membership.
func (r *VideoRepository) ListQualityUpgradeByPlaylist(playlistID uuid.UUID, targetQuality, limit int) ([]*models.Video, error) {
	return r.list(`SELECT `+videoColumnsV+` FROM videos v
		JOIN playlist_items pi ON pi.video_id = v.id
		WHERE pi.playlist_id = $1 AND v.file != ''
		AND v.quality < $2 AND v.at_max_quality = FALSE
		ORDER BY v.upload_date ASC NULLS LAST LIMIT $3`, playlistID, targetQuality, limit)
}
