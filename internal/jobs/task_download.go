package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/ffmpeg"
	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
	"github.com/clipvault/clipvault/internal/schema"
	"github.com/clipvault/clipvault/internal/storage"
)

// EventNotifier publishes progress events for observers; nil disables it.
type EventNotifier interface {
	Broadcast(event string, data interface{})
}

// DownloadHandler runs the per-video pipeline: fetch, convert, store,
// clean the cache, then record success. The whole chain runs under the
// video's processing lock.
type DownloadHandler struct {
	videoRepo   *repository.VideoRepository
	channelRepo *repository.ChannelRepository
	errorRepo   *repository.DownloadErrorRepository
	client      provider.Client
	converter   *ffmpeg.Converter
	store       storage.Storage
	registry    locks.Registry
	notifier    *notifications.Notifier
	events      EventNotifier
	queue       *Queue
	cfg         *config.Config
}

func NewDownloadHandler(videoRepo *repository.VideoRepository, channelRepo *repository.ChannelRepository,
	errorRepo *repository.DownloadErrorRepository, client provider.Client, converter *ffmpeg.Converter,
	store storage.Storage, registry locks.Registry, notifier *notifications.Notifier,
	events EventNotifier, queue *Queue, cfg *config.Config) *DownloadHandler {
	return &DownloadHandler{
		videoRepo: videoRepo, channelRepo: channelRepo, errorRepo: errorRepo,
		client: client, converter: converter, store: store, registry: registry,
		notifier: notifier, events: events, queue: queue, cfg: cfg,
	}
}

func (h *DownloadHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DownloadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	videoID, _ := uuid.Parse(p.VideoID)
	video, err := h.videoRepo.GetByID(videoID)
	if err != nil {
		return fmt.Errorf("get video: %w", err)
	}
	if video.HasFile() {
		log.Printf("Download: %s already has a file, skipping", video.ProviderID)
		return nil
	}

	token, err := h.registry.Acquire(ctx, "Video", video.ID.String(), "processing", locks.DefaultTTL)
	if err != nil {
		log.Printf("Download: %s processing lock held, skipping", video.ProviderID)
		return nil
	}
	defer h.registry.Release(context.Background(), token)

	var channel *models.Channel
	if video.ChannelID != nil {
		channel, _ = h.channelRepo.GetByID(*video.ChannelID)
	}

	video.SystemNotes.SetLatestDownloadStats(map[string]any{
		"processing_started": time.Now(),
		"task_source":        p.TaskSource,
		"requested_by":       p.RequestedBy,
	})
	if err := h.videoRepo.Save(video); err != nil {
		return fmt.Errorf("save processing start: %w", err)
	}
	h.broadcast("download:start", video, p.TaskSource)

	result, err := h.fetch(ctx, video, channel)
	if err != nil {
		h.recordFailure(video, p, err)
		return nil
	}
	video.SystemNotes.AppendToLatestDownloadStats(map[string]any{
		"download_started":  result.DownloadStarted,
		"download_finished": result.DownloadFinished,
	})

	if err := h.postProcess(ctx, video, channel, result); err != nil {
		h.recordFailure(video, p, err)
		return nil
	}

	h.finish(video, channel)
	return nil
}

// fetch pulls the video from the provider, retrying unknown failures with
// backoff and surfacing classified failures immediately.
func (h *DownloadHandler) fetch(ctx context.Context, video *models.Video, channel *models.Channel) (*provider.DownloadResult, error) {
	opts := provider.DownloadOptions{
		Quality:        video.Quality,
		CacheDir:       h.cfg.CacheDir,
		RateLimitKBs:   h.cfg.DownloadSpeedRateLimitKBs,
		WriteInfoJSON:  h.cfg.SaveInfoJSONFile,
		WriteThumbnail: true,
		ProxyURL:       h.cfg.ProxyURL,
	}
	if channel != nil && channel.Quality > 0 && opts.Quality == 0 {
		opts.Quality = channel.Quality
	}
	if video.IsShort && h.cfg.ShortsForceMaxQuality {
		opts.MaxQuality = true
	}
	if video.RequestedMaxQuality {
		opts.MaxQuality = true
	}
	needsCookies := video.NeedsCookies || (channel != nil && channel.NeedsCookies)
	if needsCookies || h.cfg.CookiesAlwaysRequired {
		if h.cfg.CookiesFile == "" && h.cfg.CookiesAlwaysRequired {
			return nil, fmt.Errorf("cookies required but COOKIES_FILE is not set")
		}
		opts.CookiesFile = h.cfg.CookiesFile
	}
	// A video that already failed may just need authentication; retries
	// pick up cookies when the operator opts in.
	if opts.CookiesFile == "" && h.cfg.CookiesApplyOnRetries && h.cfg.CookiesFile != "" {
		if n, cerr := h.errorRepo.CountForVideo(video.ID); cerr == nil && n > 0 {
			opts.CookiesFile = h.cfg.CookiesFile
		}
	}

	var result *provider.DownloadResult
	err := provider.WithRetry(ctx, "download "+video.ProviderID, func() error {
		var ferr error
		result, ferr = h.client.Download(ctx, video.URL(), opts)
		return ferr
	})
	return result, err
}

// postProcess runs the ordered chain: mp4 conversion for mkv downloads,
// optional audio extraction, the storage write, and the cache delete.
func (h *DownloadHandler) postProcess(ctx context.Context, video *models.Video, channel *models.Channel, result *provider.DownloadResult) error {
	path := result.Filepath

	if strings.HasSuffix(path, ".mkv") {
		video.SystemNotes.AppendToLatestDownloadStats(map[string]any{"convert_video_to_mp4_started": time.Now()})
		converted, err := h.converter.ConvertToMp4(ctx, path)
		if err != nil {
			return err
		}
		video.SystemNotes.AppendToLatestDownloadStats(map[string]any{"convert_video_to_mp4_finished": time.Now()})
		_ = os.Remove(path)
		path = converted
		if channel != nil {
			h.notifier.Sendf(notifications.KindMp4ConversionCompleted, "MP4 conversion completed",
				"%s (%s)", video.Title, channel.Name)
		} else {
			h.notifier.Sendf(notifications.KindMp4ConversionCompleted, "MP4 conversion completed", "%s", video.Title)
		}
	}

	if h.shouldConvertToAudio(video, channel) {
		video.SystemNotes.AppendToLatestDownloadStats(map[string]any{"convert_video_to_audio_started": time.Now()})
		audioPath, err := h.converter.ConvertToAudio(ctx, path)
		if err != nil {
			return err
		}
		video.SystemNotes.AppendToLatestDownloadStats(map[string]any{"convert_video_to_audio_finished": time.Now()})
		handle, err := h.writeToStorage(video, channel, audioPath)
		if err != nil {
			return err
		}
		video.Audio = handle
		if h.cfg.DeleteDownloadCache {
			_ = os.Remove(audioPath)
		}
	}

	handle, err := h.writeToStorage(video, channel, path)
	if err != nil {
		return err
	}
	video.File = handle

	if result.InfoJSONFilename != "" {
		if _, statErr := os.Stat(result.InfoJSONFilename); statErr == nil {
			jsonHandle, err := h.writeToStorage(video, channel, result.InfoJSONFilename)
			if err == nil {
				video.InfoJSON = jsonHandle
			}
			if h.cfg.DeleteDownloadCache {
				_ = os.Remove(result.InfoJSONFilename)
			}
		} else if h.cfg.SaveInfoJSONFile {
			return fmt.Errorf("downloaded info json file not found: %s", result.InfoJSONFilename)
		}
	}

	if result.ThumbnailFilename != "" {
		if _, statErr := os.Stat(result.ThumbnailFilename); statErr == nil {
			thumbHandle, err := h.writeToStorage(video, channel, result.ThumbnailFilename)
			if err == nil {
				video.Thumbnail = thumbHandle
			}
			if h.cfg.DeleteDownloadCache {
				_ = os.Remove(result.ThumbnailFilename)
			}
		}
	}

	if len(result.RequestedDownloads) > 0 {
		rd := result.RequestedDownloads[0]
		video.FormatID = rd.FormatID
		video.FormatNote = rd.FormatNote
		if rd.Height > 0 {
			video.Quality = rd.Height
		}
	}

	if h.cfg.DeleteDownloadCache {
		_ = os.Remove(path)
	}
	return nil
}

func (h *DownloadHandler) shouldConvertToAudio(video *models.Video, channel *models.Channel) bool {
	return video.ConvertToAudio || (channel != nil && channel.ConvertVideosToMp3)
}

// writeToStorage renders the schema-driven destination name and streams
// the cached file into storage.
func (h *DownloadHandler) writeToStorage(video *models.Video, channel *models.Channel, path string) (string, error) {
	sctx := schema.NewContext(video, channel, nil)
	dirSchema, nameSchema := "", ""
	if channel != nil {
		dirSchema = channel.VideoDirectorySchema
		nameSchema = channel.VideoFilenameSchema
	}
	dir, err := schema.RenderDirectory(dirSchema, sctx)
	if err != nil {
		return "", err
	}
	name, err := schema.RenderFilename(nameSchema, sctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open cached file: %w", err)
	}
	defer f.Close()
	return h.store.Save(filepath.Join(dir, name+filepath.Ext(path)), f)
}

// finish performs the success bookkeeping and schedules the independent
// post-success tasks.
func (h *DownloadHandler) finish(video *models.Video, channel *models.Channel) {
	now := time.Now()
	video.DateDownloaded = &now
	video.ForceDownload = false
	video.SystemNotes.SetWasLiveAtLastAttempt(false)
	video.SystemNotes.AppendToLatestDownloadStats(map[string]any{"processing_finished": now})
	if err := h.videoRepo.Save(video); err != nil {
		log.Printf("Download: save success for %s: %v", video.ProviderID, err)
		return
	}

	log.Printf("Download: %s downloaded successfully", video.ProviderID)
	h.broadcast("download:complete", video, "")

	if channel == nil || channel.SendDownloadNotification {
		h.notifier.Sendf(notifications.KindVideoDownloaded, "Video downloaded", "%s", video.Title)
	}

	if err := h.queue.DispatchPostDownload(video.ID); err != nil {
		log.Printf("Download: post-download dispatch for %s: %v", video.ProviderID, err)
	}
	if h.shouldDownloadComments(video) {
		if err := h.queue.DispatchComments(video.ID); err != nil {
			log.Printf("Download: comments dispatch for %s: %v", video.ProviderID, err)
		}
	}
}

func (h *DownloadHandler) shouldDownloadComments(video *models.Video) bool {
	return video.DownloadCommentsOnIndex
}

// recordFailure classifies the error, mutates privacy status where the
// taxonomy says so, and appends a DownloadError row. Failed tasks never
// re-enqueue themselves; the next archiver tick re-evaluates.
func (h *DownloadHandler) recordFailure(video *models.Video, p DownloadPayload, err error) {
	class := provider.ClassOf(err)
	switch class {
	case provider.ClassBlocked:
		video.PrivacyStatus = models.PrivacyBlocked
	case provider.ClassPrivate:
		video.PrivacyStatus = models.PrivacyPrivate
	case provider.ClassUnavailableItem:
		video.PrivacyStatus = models.PrivacyUnavailable
	case provider.ClassDeleted:
		video.PrivacyStatus = models.PrivacyDeleted
	case provider.ClassLiveEvent:
		video.SystemNotes.SetWasLiveAtLastAttempt(true)
	}
	if h.cfg.ProxyURL != "" {
		video.SystemNotes.MarkProxyAttempted(h.cfg.ProxyURL)
	}
	if saveErr := h.videoRepo.Save(video); saveErr != nil {
		log.Printf("Download: save failure state for %s: %v", video.ProviderID, saveErr)
	}

	kwargs := map[string]any{
		"task_source":  p.TaskSource,
		"requested_by": p.RequestedBy,
		"error_class":  string(class),
	}
	if addErr := h.errorRepo.Add(video.ID, kwargs, err.Error()); addErr != nil {
		log.Printf("Download: record error for %s: %v", video.ProviderID, addErr)
	}
	log.Printf("Download: %s failed (%s): %v", video.ProviderID, class, err)
	h.broadcast("download:failed", video, p.TaskSource)
}

func (h *DownloadHandler) broadcast(event string, video *models.Video, source string) {
	if h.events == nil {
		return
	}
	data := map[string]any{"video_id": video.ID.String(), "provider_id": video.ProviderID}
	if source != "" {
		data["task_source"] = source
	}
	h.events.Broadcast(event, data)
}
