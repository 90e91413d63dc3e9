package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/models"
)

// ──────── Payloads ────────

type DownloadPayload struct {
	VideoID     string `json:"video_id"`
	TaskSource  string `json:"task_source"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type UpdateDetailsPayload struct {
	VideoID      string `json:"video_id"`
	Mode         string `json:"mode"` // "auto" or "manual"
	DownloadFile bool   `json:"download_file,omitempty"`
}

type PostDownloadPayload struct {
	VideoID string `json:"video_id"`
}

type CommentsPayload struct {
	VideoID string `json:"video_id"`
}

type PlaylistSyncPayload struct {
	PlaylistID string `json:"playlist_id"`
}

type ChannelScanPayload struct {
	ChannelID string `json:"channel_id"`
	FullIndex bool   `json:"full_index,omitempty"`
}

type QualityUpgradeScanPayload struct{}

// ──────── Dispatch helpers ────────

// DispatchDownload enqueues one download task with a deterministic ID so a
// video is never queued twice. Countdown delays processing; zero runs it
// immediately.
func (q *Queue) DispatchDownload(video *models.Video, source, requestedBy string, countdown time.Duration) error {
	payload := DownloadPayload{
		VideoID:     video.ID.String(),
		TaskSource:  source,
		RequestedBy: requestedBy,
	}
	opts := []asynq.Option{
		asynq.Queue("downloads"),
		asynq.MaxRetry(0),
		asynq.Timeout(locksTTL),
		asynq.Retention(time.Hour),
	}
	if countdown > 0 {
		opts = append(opts, asynq.ProcessIn(countdown))
	}
	_, err := q.EnqueueUnique(TaskDownloadVideo, payload, "download:"+video.ID.String(), opts...)
	if err != nil {
		return fmt.Errorf("dispatch download %s: %w", video.ProviderID, err)
	}
	return nil
}

// locksTTL mirrors the processing-lock TTL so a stuck task and its lock
// expire together.
const locksTTL = 6 * time.Hour

// DispatchPostDownload schedules the independent post-success chores with
// a short countdown.
func (q *Queue) DispatchPostDownload(videoID uuid.UUID) error {
	_, err := q.EnqueueUnique(TaskPostDownload, PostDownloadPayload{VideoID: videoID.String()},
		"post:"+videoID.String(),
		asynq.Queue("low"), asynq.ProcessIn(10*time.Second), asynq.Retention(time.Hour))
	return err
}

// DispatchComments schedules a comments-download subtask.
func (q *Queue) DispatchComments(videoID uuid.UUID) error {
	_, err := q.EnqueueUnique(TaskDownloadComments, CommentsPayload{VideoID: videoID.String()},
		"comments:"+videoID.String(),
		asynq.Queue("low"), asynq.ProcessIn(10*time.Second), asynq.Retention(time.Hour))
	return err
}

// DispatchPlaylistSync queues a sync for one playlist.
func (q *Queue) DispatchPlaylistSync(playlistID uuid.UUID) error {
	_, err := q.EnqueueUnique(TaskPlaylistSync, PlaylistSyncPayload{PlaylistID: playlistID.String()},
		"playlist-sync:"+playlistID.String(),
		asynq.Timeout(time.Hour), asynq.Retention(time.Hour))
	return err
}

// DispatchChannelScan queues an index scan for one channel.
func (q *Queue) DispatchChannelScan(channelID uuid.UUID, fullIndex bool) error {
	_, err := q.EnqueueUnique(TaskChannelScan, ChannelScanPayload{ChannelID: channelID.String(), FullIndex: fullIndex},
		"channel-scan:"+channelID.String(),
		asynq.Timeout(2*time.Hour), asynq.Retention(time.Hour))
	return err
}

// DispatchUpdateDetails queues a metadata refresh for one video.
func (q *Queue) DispatchUpdateDetails(videoID uuid.UUID, mode string, downloadFile bool) error {
	_, err := q.EnqueueUnique(TaskUpdateVideoDetails,
		UpdateDetailsPayload{VideoID: videoID.String(), Mode: mode, DownloadFile: downloadFile},
		"update-details:"+videoID.String(),
		asynq.Queue("low"), asynq.Timeout(30*time.Minute), asynq.Retention(time.Hour))
	return err
}

// DispatchQualityUpgradeScan queues the library-wide quality upgrade scan.
func (q *Queue) DispatchQualityUpgradeScan() error {
	_, err := q.EnqueueUnique(TaskQualityUpgradeScan, QualityUpgradeScanPayload{},
		"quality-scan",
		asynq.Queue("low"), asynq.Timeout(time.Hour), asynq.Retention(time.Hour))
	return err
}
