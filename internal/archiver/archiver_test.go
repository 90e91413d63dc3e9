package archiver

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipvault/clipvault/internal/budget"
	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/eligibility"
	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
)

// ──────────────────── fakes ────────────────────

type fakeVideos struct {
	today         int
	byChannel     map[uuid.UUID][]*models.Video
	byPlaylist    map[uuid.UUID][]*models.Video
	errorRetries  []*models.Video
	liveRetries   []*models.Video
	liveness      []*models.Video
	saved         []*models.Video
	softDeleted   []uuid.UUID
}

func (f *fakeVideos) GetByID(id uuid.UUID) (*models.Video, error) { return nil, nil }
func (f *fakeVideos) Save(v *models.Video) error {
	f.saved = append(f.saved, v)
	return nil
}
func (f *fakeVideos) Delete(id uuid.UUID, allowDelete, keepRecord bool) error {
	f.softDeleted = append(f.softDeleted, id)
	return nil
}
func (f *fakeVideos) CountDownloadedToday(time.Time) (int, error) { return f.today, nil }
func (f *fakeVideos) ListUndownloadedByChannel(channelID uuid.UUID, _ *time.Time) ([]*models.Video, error) {
	return f.byChannel[channelID], nil
}
func (f *fakeVideos) ListUndownloadedByPlaylist(playlistID uuid.UUID) ([]*models.Video, error) {
	return f.byPlaylist[playlistID], nil
}
func (f *fakeVideos) ListErrorRetryCandidates(time.Time, time.Duration, int, int) ([]*models.Video, error) {
	return f.errorRetries, nil
}
func (f *fakeVideos) ListLiveRetryCandidates(time.Time, time.Duration) ([]*models.Video, error) {
	return f.liveRetries, nil
}
func (f *fakeVideos) ListMaxQualityLivenessCandidates(time.Time, time.Duration) ([]*models.Video, error) {
	return f.liveness, nil
}

type fakeChannels struct {
	fullArchive []*models.Channel
	swapsDue    []*models.Channel
	byID        map[uuid.UUID]*models.Channel
	saved       []*models.Channel
}

func (f *fakeChannels) GetByID(id uuid.UUID) (*models.Channel, error) { return f.byID[id], nil }
func (f *fakeChannels) Save(c *models.Channel) error {
	f.saved = append(f.saved, c)
	return nil
}
func (f *fakeChannels) ListFullArchive() ([]*models.Channel, error)        { return f.fullArchive, nil }
func (f *fakeChannels) ListFlagSwapsDue(time.Time) ([]*models.Channel, error) { return f.swapsDue, nil }
func (f *fakeChannels) DecrementForceNextDownloads(uuid.UUID) (bool, error) { return true, nil }
func (f *fakeChannels) DecrementSkipNextDownloads(uuid.UUID) (bool, error)  { return true, nil }

type fakePlaylists struct{ scheduled []*models.Playlist }

func (f *fakePlaylists) ListScheduled() ([]*models.Playlist, error) { return f.scheduled, nil }

type dispatched struct {
	providerID string
	source     string
	countdown  time.Duration
}

type fakeDispatcher struct {
	downloads []dispatched
	scans     []uuid.UUID
}

func (f *fakeDispatcher) DispatchDownload(v *models.Video, source, _ string, countdown time.Duration) error {
	f.downloads = append(f.downloads, dispatched{providerID: v.ProviderID, source: source, countdown: countdown})
	return nil
}

func (f *fakeDispatcher) DispatchChannelScan(channelID uuid.UUID, _ bool) error {
	f.scans = append(f.scans, channelID)
	return nil
}

type fakeClient struct {
	details map[string]*provider.VideoDetails
}

func (f *fakeClient) VideoDetails(_ context.Context, url string, _ provider.VideoDetailsOptions) (*provider.VideoDetails, error) {
	return f.details[url], nil
}
func (f *fakeClient) PlaylistDetails(context.Context, string) (*provider.PlaylistDetails, error) {
	return nil, nil
}
func (f *fakeClient) ChannelDetails(context.Context, string) (*provider.ChannelDetails, error) {
	return nil, nil
}
func (f *fakeClient) ChannelEntries(context.Context, string, int) ([]provider.ChannelEntry, error) {
	return nil, nil
}
func (f *fakeClient) Download(context.Context, string, provider.DownloadOptions) (*provider.DownloadResult, error) {
	return nil, nil
}
func (f *fakeClient) DownloadComments(context.Context, string, provider.VideoDetailsOptions) (string, error) {
	return "", nil
}

type noErrors struct{}

func (noErrors) CountForVideoSince(uuid.UUID, time.Time) (int, error) { return 0, nil }
func (noErrors) CountForVideo(uuid.UUID) (int, error)                 { return 0, nil }

type neverBlocked struct{}

func (neverBlocked) IsBlocked(string) (bool, error) { return false, nil }

// ──────────────────── harness ────────────────────

type harness struct {
	arch      *Archiver
	videos    *fakeVideos
	channels  *fakeChannels
	playlists *fakePlaylists
	dispatch  *fakeDispatcher
	client    *fakeClient
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		videos: &fakeVideos{
			byChannel:  map[uuid.UUID][]*models.Video{},
			byPlaylist: map[uuid.UUID][]*models.Video{},
		},
		channels:  &fakeChannels{byID: map[uuid.UUID]*models.Channel{}},
		playlists: &fakePlaylists{},
		dispatch:  &fakeDispatcher{},
		client:    &fakeClient{details: map[string]*provider.VideoDetails{}},
	}
	filter := eligibility.New(locks.NewMemoryRegistry(), neverBlocked{}, noErrors{}, h.channels,
		cfg.VideoDownloadErrorDailyAttempts, cfg.VideoDownloadErrorAttempts)
	calc := budget.New(cfg.AutomatedDownloadsDailyLimit, cfg.AutomatedDownloadsPerTaskLimit,
		cfg.AutomatedDownloadsDurationLimitSplit)
	h.arch = New(h.videos, h.channels, h.playlists, filter, calc, h.dispatch,
		h.client, notifications.New(""), cfg)
	return h
}

func testConfig() *config.Config {
	return &config.Config{
		AutomatedDownloadsDailyLimit:         400,
		AutomatedDownloadsPerTaskLimit:       4,
		AutomatedDownloadsDurationLimitSplit: 5400,
		VideoDownloadErrorWaitPeriodMinutes:  60,
		VideoDownloadErrorDailyAttempts:      5,
		VideoDownloadErrorAttempts:           70,
		VideoLiveDownloadRetryHours:          6,
	}
}

func newVideo(providerID string) *models.Video {
	v := &models.Video{
		ID:            uuid.New(),
		ProviderID:    providerID,
		Title:         "Video " + providerID,
		Duration:      300,
		PrivacyStatus: models.PrivacyPublic,
	}
	v.SetKind(models.KindVideo)
	return v
}

func archiveChannel(name string) *models.Channel {
	return &models.Channel{
		ID:             uuid.New(),
		Name:           name,
		Status:         models.ChannelActive,
		FullArchive:    true,
		DownloadVideos: true,
	}
}

// ──────────────────── tests ────────────────────

func TestTickDispatchesWithinPerTickLimit(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("Backlog")
	h.channels.fullArchive = []*models.Channel{ch}
	for i := 0; i < 10; i++ {
		h.videos.byChannel[ch.ID] = append(h.videos.byChannel[ch.ID], newVideo(uuid.NewString()))
	}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.downloads, 4)
	for _, d := range h.dispatch.downloads {
		assert.Equal(t, SourceFullArchive, d.source)
		assert.Zero(t, d.countdown)
	}
}

func TestTickRespectsDailyLimit(t *testing.T) {
	cfg := testConfig()
	h := newHarness(cfg)
	h.videos.today = cfg.AutomatedDownloadsDailyLimit
	ch := archiveChannel("Backlog")
	h.channels.fullArchive = []*models.Channel{ch}
	h.videos.byChannel[ch.ID] = []*models.Video{newVideo("a")}

	h.arch.Tick(context.Background())

	assert.Empty(t, h.dispatch.downloads)
}

func TestBudgetSharedAcrossPasses(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("Backlog")
	h.channels.fullArchive = []*models.Channel{ch}
	h.videos.byChannel[ch.ID] = []*models.Video{newVideo("c1"), newVideo("c2"), newVideo("c3")}

	pl := &models.Playlist{ID: uuid.New(), Title: "List"}
	h.playlists.scheduled = []*models.Playlist{pl}
	h.videos.byPlaylist[pl.ID] = []*models.Video{newVideo("p1"), newVideo("p2"), newVideo("p3")}

	h.arch.Tick(context.Background())

	// Per-tick limit of 4: three from the channel pass, one from playlists.
	require.Len(t, h.dispatch.downloads, 4)
	assert.Equal(t, SourcePlaylist, h.dispatch.downloads[3].source)
}

func TestDurationHalving(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("LongForm")
	h.channels.fullArchive = []*models.Channel{ch}
	long := newVideo("long")
	long.Duration = 7200
	h.videos.byChannel[ch.ID] = []*models.Video{long, newVideo("b"), newVideo("c"), newVideo("d")}

	h.arch.Tick(context.Background())

	assert.Len(t, h.dispatch.downloads, 2)
}

func TestSlowFullArchiveTakesOne(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("Slow")
	ch.SlowFullArchive = true
	h.channels.fullArchive = []*models.Channel{ch}
	h.videos.byChannel[ch.ID] = []*models.Video{newVideo("a"), newVideo("b"), newVideo("c")}

	h.arch.Tick(context.Background())

	assert.Len(t, h.dispatch.downloads, 1)
}

func TestFullArchiveCompletion(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("Done")
	h.channels.fullArchive = []*models.Channel{ch}

	h.arch.Tick(context.Background())

	require.Len(t, h.channels.saved, 1)
	saved := h.channels.saved[0]
	assert.False(t, saved.FullArchive)
	assert.False(t, saved.SlowFullArchive)
	assert.True(t, saved.SendDownloadNotification)
	assert.True(t, saved.FullyIndexed)
	assert.Empty(t, h.dispatch.downloads)
}

func TestFullArchiveSkipsUndownloadedKinds(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("VideosOnly")
	h.channels.fullArchive = []*models.Channel{ch}
	short := newVideo("s")
	short.SetKind(models.KindShort)
	live := newVideo("l")
	live.SetKind(models.KindLivestream)
	h.videos.byChannel[ch.ID] = []*models.Video{short, live, newVideo("v")}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.downloads, 1)
	assert.Equal(t, "v", h.dispatch.downloads[0].providerID)
}

func TestLiveRetryDispatchWithCountdown(t *testing.T) {
	h := newHarness(testConfig())
	v := newVideo("was-live")
	v.SystemNotes.SetWasLiveAtLastAttempt(true)
	h.videos.liveRetries = []*models.Video{v}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.downloads, 1)
	d := h.dispatch.downloads[0]
	assert.Equal(t, SourceLiveReattempt, d.source)
	assert.Equal(t, 10*time.Second, d.countdown)
	assert.False(t, v.SystemNotes.WasLiveAtLastAttempt())
	require.NotEmpty(t, h.videos.saved)
}

func TestErrorRetrySource(t *testing.T) {
	h := newHarness(testConfig())
	h.videos.errorRetries = []*models.Video{newVideo("retry-me")}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.downloads, 1)
	assert.Equal(t, SourceErrorReattempt, h.dispatch.downloads[0].source)
}

func TestFlagSwapPromotesDownloads(t *testing.T) {
	h := newHarness(testConfig())
	past := time.Now().Add(-time.Hour)
	ch := &models.Channel{
		ID: uuid.New(), Name: "Swapper", Status: models.ChannelActive,
		IndexVideos: true, SwapIndexVideosAfter: &past,
	}
	h.channels.swapsDue = []*models.Channel{ch}

	h.arch.Tick(context.Background())

	require.Len(t, h.channels.saved, 1)
	saved := h.channels.saved[0]
	assert.True(t, saved.DownloadVideos)
	assert.Nil(t, saved.SwapIndexVideosAfter)
}

func TestFlagSwapStartsDelayedFullArchive(t *testing.T) {
	h := newHarness(testConfig())
	past := time.Now().Add(-time.Hour)
	ch := &models.Channel{
		ID: uuid.New(), Name: "Delayed", Status: models.ChannelActive,
		FullArchiveAfter: &past,
	}
	h.channels.swapsDue = []*models.Channel{ch}

	h.arch.Tick(context.Background())

	require.Len(t, h.channels.saved, 1)
	assert.True(t, h.channels.saved[0].FullArchive)
}

func TestFlagSwapDispatchesDelayedFullIndex(t *testing.T) {
	h := newHarness(testConfig())
	past := time.Now().Add(-time.Hour)
	ch := &models.Channel{
		ID: uuid.New(), Name: "Indexer", Status: models.ChannelActive,
		IndexVideos: true, FullIndexAfter: &past,
	}
	h.channels.swapsDue = []*models.Channel{ch}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.scans, 1)
	assert.Equal(t, ch.ID, h.dispatch.scans[0])
}

func TestMaxQualityLivenessUpgrade(t *testing.T) {
	h := newHarness(testConfig())
	v := newVideo("upgrade-me")
	v.File = "stored.mp4"
	v.Quality = 720
	h.videos.liveness = []*models.Video{v}
	h.client.details[v.URL()] = &provider.VideoDetails{
		Formats: []provider.Format{{Height: 1080}},
	}

	h.arch.Tick(context.Background())

	require.Len(t, h.dispatch.downloads, 1)
	assert.Equal(t, SourceMaxQuality, h.dispatch.downloads[0].source)
	assert.Contains(t, h.videos.softDeleted, v.ID)
}

func TestMaxQualityLivenessMarksAtMax(t *testing.T) {
	h := newHarness(testConfig())
	v := newVideo("already-best")
	v.File = "stored.mp4"
	v.Quality = 1080
	h.videos.liveness = []*models.Video{v}
	h.client.details[v.URL()] = &provider.VideoDetails{
		Formats: []provider.Format{{Height: 1080}},
	}

	h.arch.Tick(context.Background())

	assert.Empty(t, h.dispatch.downloads)
	assert.True(t, v.AtMaxQuality)
	require.NotEmpty(t, h.videos.saved)
}

func TestSkipCreditRejectsAndConsumes(t *testing.T) {
	h := newHarness(testConfig())
	ch := archiveChannel("Skipper")
	ch.SkipNextDownloads = 1
	h.channels.fullArchive = []*models.Channel{ch}
	h.videos.byChannel[ch.ID] = []*models.Video{newVideo("skipped")}

	h.arch.Tick(context.Background())

	assert.Empty(t, h.dispatch.downloads)
}
