package jobs

import (
	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/ffmpeg"
	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
	"github.com/clipvault/clipvault/internal/storage"
)

// Repos bundles the repositories the handlers share.
type Repos struct {
	Videos        *repository.VideoRepository
	Channels      *repository.ChannelRepository
	Playlists     *repository.PlaylistRepository
	PlaylistItems *repository.PlaylistItemRepository
	Annotations   *repository.AnnotationRepository
	Errors        *repository.DownloadErrorRepository
	Blocked       *repository.BlockedRepository
	Scans         *repository.ScanHistoryRepository
}

// RegisterHandlers wires every task handler onto the queue's mux.
func RegisterHandlers(q *Queue, repos Repos, client provider.Client, converter *ffmpeg.Converter,
	store storage.Storage, registry locks.Registry, notifier *notifications.Notifier,
	events EventNotifier, cfg *config.Config) {

	q.RegisterHandler(TaskDownloadVideo, NewDownloadHandler(
		repos.Videos, repos.Channels, repos.Errors, client, converter,
		store, registry, notifier, events, q, cfg))
	q.RegisterHandler(TaskUpdateVideoDetails, NewUpdateDetailsHandler(
		repos.Videos, repos.Annotations, client, registry, q, cfg))
	q.RegisterHandler(TaskPostDownload, NewPostDownloadHandler(repos.Videos, repos.Channels, store, q))
	q.RegisterHandler(TaskDownloadComments, NewCommentsHandler(
		repos.Videos, repos.Channels, client, store, cfg))
	q.RegisterHandler(TaskPlaylistSync, NewPlaylistSyncHandler(
		repos.Playlists, repos.PlaylistItems, repos.Videos, repos.Channels,
		repos.Blocked, repos.Scans, client, registry, notifier, q))
	q.RegisterHandler(TaskChannelScan, NewChannelScanHandler(
		repos.Channels, repos.Videos, repos.Playlists, repos.PlaylistItems,
		repos.Blocked, repos.Scans, client, registry, notifier))
	q.RegisterHandler(TaskQualityUpgradeScan, NewQualityUpgradeHandler(
		repos.Channels, repos.Playlists, repos.Videos, q, cfg))
}
