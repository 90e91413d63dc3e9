package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
)

// recentScanLimit bounds how many listing entries an incremental scan
// walks per tab. Full index scans walk everything.
const recentScanLimit = 30

// ChannelScanHandler walks a channel's listing tabs and indexes new
// uploads. A provider response indicating the channel itself is gone
// transitions the channel's status and fires a notification.
type ChannelScanHandler struct {
	channelRepo  *repository.ChannelRepository
	videoRepo    *repository.VideoRepository
	playlistRepo *repository.PlaylistRepository
	itemRepo     *repository.PlaylistItemRepository
	blockedRepo  *repository.BlockedRepository
	scanRepo     *repository.ScanHistoryRepository
	client       provider.Client
	registry     locks.Registry
	notifier     *notifications.Notifier
}

func NewChannelScanHandler(channelRepo *repository.ChannelRepository, videoRepo *repository.VideoRepository,
	playlistRepo *repository.PlaylistRepository, itemRepo *repository.PlaylistItemRepository,
	blockedRepo *repository.BlockedRepository, scanRepo *repository.ScanHistoryRepository,
	client provider.Client, registry locks.Registry, notifier *notifications.Notifier) *ChannelScanHandler {
	return &ChannelScanHandler{
		channelRepo: channelRepo, videoRepo: videoRepo,
		playlistRepo: playlistRepo, itemRepo: itemRepo, blockedRepo: blockedRepo,
		scanRepo: scanRepo, client: client, registry: registry, notifier: notifier,
	}
}

func (h *ChannelScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ChannelScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	channelID, _ := uuid.Parse(p.ChannelID)
	channel, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if channel.Status != models.ChannelActive {
		log.Printf("ChannelScan: %s is %s, skipping", channel.Name, channel.Status)
		return nil
	}

	token, err := h.registry.Acquire(ctx, "Channel", channel.ID.String(), "scanning", 2*time.Hour)
	if err != nil {
		log.Printf("ChannelScan: %s scanning lock held, skipping", channel.Name)
		return nil
	}
	defer h.registry.Release(context.Background(), token)

	tabs := h.tabs(channel)
	if len(tabs) == 0 {
		log.Printf("ChannelScan: %s has no indexing enabled, skipping", channel.Name)
		return nil
	}

	limit := recentScanLimit
	if p.FullIndex {
		limit = 0
	}
	indexed := 0
	for _, tab := range tabs {
		n, err := h.scanTab(ctx, channel, tab, limit)
		if err != nil {
			if h.handleChannelGone(channel, err) {
				return nil
			}
			log.Printf("ChannelScan: %s tab %s: %v", channel.Name, tab.path, err)
			continue
		}
		indexed += n
		if p.FullIndex {
			h.markFullyIndexed(channel, tab.kind)
		}
	}

	if p.FullIndex {
		if err := h.channelRepo.Save(channel); err != nil {
			log.Printf("ChannelScan: save index flags for %s: %v", channel.Name, err)
		}
	}
	if err := h.scanRepo.Record(models.ScanTargetChannel, channel.ID); err != nil {
		log.Printf("ChannelScan: record scan for %s: %v", channel.Name, err)
	}
	log.Printf("ChannelScan: %s indexed %d new item(s)", channel.Name, indexed)
	return nil
}

type channelTab struct {
	path string
	kind models.VideoKind
}

func (h *ChannelScanHandler) tabs(channel *models.Channel) []channelTab {
	var tabs []channelTab
	if channel.IndexVideos {
		tabs = append(tabs, channelTab{path: "videos", kind: models.KindVideo})
	}
	if channel.IndexShorts {
		tabs = append(tabs, channelTab{path: "shorts", kind: models.KindShort})
	}
	if channel.IndexLivestreams {
		tabs = append(tabs, channelTab{path: "streams", kind: models.KindLivestream})
	}
	return tabs
}

func (h *ChannelScanHandler) scanTab(ctx context.Context, channel *models.Channel, tab channelTab, limit int) (int, error) {
	url := "https://www.youtube.com/channel/" + channel.ProviderID + "/" + tab.path
	entries, err := h.client.ChannelEntries(ctx, url, limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, entry := range entries {
		if blocked, berr := h.blockedRepo.IsBlocked(entry.ID); berr == nil && blocked {
			continue
		}
		existing, gerr := h.videoRepo.GetByProviderID(entry.ID)
		if gerr != nil {
			return created, gerr
		}
		if existing != nil {
			continue
		}

		video := &models.Video{
			ProviderID:     entry.ID,
			ChannelID:      &channel.ID,
			Title:          entry.Title,
			Duration:       entry.Duration,
			Quality:        channel.Quality,
			PrivacyStatus:  models.PrivacyPublic,
			PermitDownload: true,
			NeedsCookies:   channel.NeedsCookies,
		}
		video.SetKind(tab.kind)
		if entry.UploadDate != "" {
			if d, perr := time.Parse("20060102", entry.UploadDate); perr == nil {
				video.UploadDate = &d
			}
		}
		if err := h.videoRepo.Save(video); err != nil {
			return created, err
		}
		h.addToTitlePlaylists(video)
		created++
	}
	return created, nil
}

// addToTitlePlaylists files a freshly indexed video into every local
// playlist whose title-add string matches. Remote playlists never
// title-add; their membership comes from the provider.
func (h *ChannelScanHandler) addToTitlePlaylists(video *models.Video) {
	playlists, err := h.playlistRepo.ListAll()
	if err != nil {
		log.Printf("ChannelScan: list playlists for title-add: %v", err)
		return
	}
	for _, playlist := range playlists {
		if playlist.ProviderID != "" || playlist.VideoIndexingAddByTitle == "" {
			continue
		}
		if !titleContains(video.Title, playlist.VideoIndexingAddByTitle) {
			continue
		}
		item := &models.PlaylistItem{
			PlaylistID: playlist.ID,
			VideoID:    video.ID,
			Download:   desiredItemDownload(playlist, video),
		}
		if err := h.itemRepo.Create(item); err != nil {
			log.Printf("ChannelScan: title-add %s to %s: %v", video.ProviderID, playlist.Title, err)
			continue
		}
		log.Printf("ChannelScan: %s title-added to playlist %s", video.ProviderID, playlist.Title)
	}
}

func (h *ChannelScanHandler) markFullyIndexed(channel *models.Channel, kind models.VideoKind) {
	switch kind {
	case models.KindVideo:
		channel.FullyIndexed = true
	case models.KindShort:
		channel.FullyIndexedShorts = true
	case models.KindLivestream:
		channel.FullyIndexedLivestreams = true
	}
}

// handleChannelGone transitions the channel when the provider reports it
// terminated, removed, or missing. Returns true when handled.
func (h *ChannelScanHandler) handleChannelGone(channel *models.Channel, err error) bool {
	status, ok := provider.ChannelGone(err.Error())
	if !ok {
		return false
	}
	channel.Status = models.ChannelStatus(status)
	if saveErr := h.channelRepo.Save(channel); saveErr != nil {
		log.Printf("ChannelScan: save status for %s: %v", channel.Name, saveErr)
		return true
	}
	h.notifier.Sendf(notifications.KindChannelStatusChanged, "Channel status changed",
		"%s is now %s", channel.Name, status)
	log.Printf("ChannelScan: %s marked %s", channel.Name, status)
	return true
}
