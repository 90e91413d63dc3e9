package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
	"github.com/clipvault/clipvault/internal/schema"
	"github.com/clipvault/clipvault/internal/storage"
)

// PostDownloadHandler runs the chores that follow a successful download
// but must not block it: verifying the stored file, relocating files whose
// schema-rendered destination drifted, recomputing the at-max-quality
// marker, and queueing a metadata refresh.
type PostDownloadHandler struct {
	videoRepo   *repository.VideoRepository
	channelRepo *repository.ChannelRepository
	store       storage.Storage
	queue       *Queue
}

func NewPostDownloadHandler(videoRepo *repository.VideoRepository, channelRepo *repository.ChannelRepository,
	store storage.Storage, queue *Queue) *PostDownloadHandler {
	return &PostDownloadHandler{videoRepo: videoRepo, channelRepo: channelRepo, store: store, queue: queue}
}

func (h *PostDownloadHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PostDownloadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	videoID, _ := uuid.Parse(p.VideoID)
	video, err := h.videoRepo.GetByID(videoID)
	if err != nil {
		return fmt.Errorf("get video: %w", err)
	}
	if !video.HasFile() {
		log.Printf("PostDownload: %s has no file, skipping", video.ProviderID)
		return nil
	}
	if !h.store.Exists(video.File) {
		return fmt.Errorf("stored file missing for %s: %s", video.ProviderID, video.File)
	}

	var channel *models.Channel
	if video.ChannelID != nil {
		channel, _ = h.channelRepo.GetByID(*video.ChannelID)
	}
	if err := h.relocate(video, channel); err != nil {
		log.Printf("PostDownload: relocate %s: %v", video.ProviderID, err)
	}

	if video.AtReportedMaxQuality() {
		video.AtMaxQuality = true
		if err := h.videoRepo.Save(video); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	// The download path trusts the pre-download metadata; refresh it now
	// that the provider has settled the final formats.
	if err := h.queue.DispatchUpdateDetails(video.ID, "auto", false); err != nil {
		log.Printf("PostDownload: details dispatch for %s: %v", video.ProviderID, err)
	}
	return nil
}

// relocate moves the video's stored files when the schema-rendered
// destination no longer matches where they sit, which happens after schema
// edits or channel renames. Sidecars follow the media file's base name.
func (h *PostDownloadHandler) relocate(video *models.Video, channel *models.Channel) error {
	sctx := schema.NewContext(video, channel, nil)
	dirSchema, nameSchema := "", ""
	if channel != nil {
		dirSchema = channel.VideoDirectorySchema
		nameSchema = channel.VideoFilenameSchema
	}
	dir, err := schema.RenderDirectory(dirSchema, sctx)
	if err != nil {
		return err
	}
	name, err := schema.RenderFilename(nameSchema, sctx)
	if err != nil {
		return err
	}

	moved := false
	for _, f := range []struct {
		handle *string
		suffix string
	}{
		{&video.File, filepath.Ext(video.File)},
		{&video.Audio, filepath.Ext(video.Audio)},
		{&video.Thumbnail, filepath.Ext(video.Thumbnail)},
		{&video.InfoJSON, ".info.json"},
	} {
		if *f.handle == "" {
			continue
		}
		want := h.store.GetValidName(filepath.Join(dir, name+f.suffix))
		if *f.handle == want || !h.store.Exists(*f.handle) {
			continue
		}
		newHandle, err := h.store.Move(*f.handle, want)
		if err != nil {
			return err
		}
		*f.handle = newHandle
		moved = true
	}
	if !moved {
		return nil
	}
	log.Printf("PostDownload: relocated files for %s", video.ProviderID)
	return h.videoRepo.Save(video)
}

// CommentsHandler fetches the comment-annotated metadata file for a
// downloaded video and stores it beside the media.
type CommentsHandler struct {
	videoRepo   *repository.VideoRepository
	channelRepo *repository.ChannelRepository
	client      provider.Client
	store       storage.Storage
	cfg         *config.Config
}

func NewCommentsHandler(videoRepo *repository.VideoRepository, channelRepo *repository.ChannelRepository,
	client provider.Client, store storage.Storage, cfg *config.Config) *CommentsHandler {
	return &CommentsHandler{videoRepo: videoRepo, channelRepo: channelRepo, client: client, store: store, cfg: cfg}
}

func (h *CommentsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p CommentsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	videoID, _ := uuid.Parse(p.VideoID)
	video, err := h.videoRepo.GetByID(videoID)
	if err != nil {
		return fmt.Errorf("get video: %w", err)
	}

	opts := provider.VideoDetailsOptions{Quiet: true, WriteInfoJSON: true}
	if video.NeedsCookies {
		opts.CookiesFile = h.cfg.CookiesFile
	}
	path, err := h.client.DownloadComments(ctx, video.URL(), opts)
	if err != nil {
		return fmt.Errorf("download comments for %s: %w", video.ProviderID, err)
	}

	var channel *models.Channel
	if video.ChannelID != nil {
		channel, _ = h.channelRepo.GetByID(*video.ChannelID)
	}
	sctx := schema.NewContext(video, channel, nil)
	dirSchema, nameSchema := "", ""
	if channel != nil {
		dirSchema = channel.VideoDirectorySchema
		nameSchema = channel.VideoFilenameSchema
	}
	dir, err := schema.RenderDirectory(dirSchema, sctx)
	if err != nil {
		return err
	}
	name, err := schema.RenderFilename(nameSchema, sctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open comments file: %w", err)
	}
	handle, err := h.store.Save(filepath.Join(dir, name+".info.json"), f)
	f.Close()
	if err != nil {
		return err
	}
	if h.cfg.DeleteDownloadCache {
		_ = os.Remove(path)
	}

	video.InfoJSON = handle
	if err := h.videoRepo.Save(video); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	log.Printf("Comments: stored for %s", video.ProviderID)
	return nil
}
