package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
)

type fakeBlocked struct{ ids map[string]bool }

func (f *fakeBlocked) IsBlocked(providerID string) (bool, error) { return f.ids[providerID], nil }

type fakeErrors struct {
	daily int
	total int
}

func (f *fakeErrors) CountForVideoSince(uuid.UUID, time.Time) (int, error) { return f.daily, nil }
func (f *fakeErrors) CountForVideo(uuid.UUID) (int, error)                 { return f.total, nil }

type fakeCounters struct {
	forceDecrements int
	skipDecrements  int
}

func (f *fakeCounters) DecrementForceNextDownloads(uuid.UUID) (bool, error) {
	f.forceDecrements++
	return true, nil
}

func (f *fakeCounters) DecrementSkipNextDownloads(uuid.UUID) (bool, error) {
	f.skipDecrements++
	return true, nil
}

type harness struct {
	filter   *Filter
	blocked  *fakeBlocked
	errors   *fakeErrors
	counters *fakeCounters
	registry *locks.MemoryRegistry
}

func newHarness() *harness {
	h := &harness{
		blocked:  &fakeBlocked{ids: map[string]bool{}},
		errors:   &fakeErrors{},
		counters: &fakeCounters{},
		registry: locks.NewMemoryRegistry(),
	}
	h.filter = New(h.registry, h.blocked, h.errors, h.counters, 5, 70)
	return h
}

func video() *models.Video {
	v := &models.Video{
		ID:            uuid.New(),
		ProviderID:    "vid123",
		Title:         "An Ordinary Upload",
		Duration:      600,
		PrivacyStatus: models.PrivacyPublic,
	}
	v.SetKind(models.KindVideo)
	return v
}

func channel() *models.Channel {
	return &models.Channel{ID: uuid.New(), Name: "Test Channel", Status: models.ChannelActive}
}

func TestAcceptsPlainCandidate(t *testing.T) {
	h := newHarness()
	verdict := h.filter.Check(context.Background(), Candidate{Video: video(), Channel: channel()})
	assert.True(t, verdict.Allowed)
}

func TestRejectsAlreadyDownloaded(t *testing.T) {
	h := newHarness()
	v := video()
	v.File = "stored/file.mp4"
	verdict := h.filter.Check(context.Background(), Candidate{Video: v})
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "already downloaded", verdict.Reason)
}

func TestRejectsWhenProcessingLockHeld(t *testing.T) {
	h := newHarness()
	v := video()
	_, err := h.registry.Acquire(context.Background(), "Video", v.ID.String(), "processing", time.Minute)
	require.NoError(t, err)

	verdict := h.filter.Check(context.Background(), Candidate{Video: v})
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "processing lock held", verdict.Reason)
}

func TestRejectsBlockedProviderID(t *testing.T) {
	h := newHarness()
	v := video()
	h.blocked.ids[v.ProviderID] = true
	verdict := h.filter.Check(context.Background(), Candidate{Video: v})
	assert.False(t, verdict.Allowed)
}

func TestRejectsNonPublicUnlessForced(t *testing.T) {
	h := newHarness()
	v := video()
	v.PrivacyStatus = models.PrivacyPrivate
	verdict := h.filter.Check(context.Background(), Candidate{Video: v})
	assert.False(t, verdict.Allowed)

	v.ForceDownload = true
	verdict = h.filter.Check(context.Background(), Candidate{Video: v})
	assert.True(t, verdict.Allowed)
}

func TestRejectsAtDailyErrorCap(t *testing.T) {
	h := newHarness()
	h.errors.daily = 5
	verdict := h.filter.Check(context.Background(), Candidate{Video: video()})
	assert.False(t, verdict.Allowed)
}

func TestRejectsAtHardErrorCap(t *testing.T) {
	h := newHarness()
	h.errors.total = 70
	verdict := h.filter.Check(context.Background(), Candidate{Video: video()})
	assert.False(t, verdict.Allowed)
}

func TestErrorCapBeatsForce(t *testing.T) {
	// A forced video still cannot bypass the error budget.
	h := newHarness()
	h.errors.daily = 5
	v := video()
	v.ForceDownload = true
	verdict := h.filter.Check(context.Background(), Candidate{Video: v})
	assert.False(t, verdict.Allowed)
}

func TestErrorCapRejectionKeepsForceCredit(t *testing.T) {
	// A channel force credit is spent only when the video is actually
	// accepted; an error-budget rejection must leave the counter alone.
	h := newHarness()
	h.errors.daily = 5
	ch := channel()
	ch.ForceNextDownloads = 1

	verdict := h.filter.Requested(context.Background(), Candidate{Video: video(), Channel: ch})
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "at max daily errors", verdict.Reason)
	assert.Zero(t, h.counters.forceDecrements)
}

func TestSkipCreditConsumedOnlyOnRequest(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.SkipNextDownloads = 2

	verdict := h.filter.Check(context.Background(), Candidate{Video: video(), Channel: ch})
	assert.False(t, verdict.Allowed)
	assert.Zero(t, h.counters.skipDecrements)

	verdict = h.filter.Requested(context.Background(), Candidate{Video: video(), Channel: ch})
	assert.False(t, verdict.Allowed)
	assert.Equal(t, 1, h.counters.skipDecrements)
}

func TestForceCreditConsumedOnlyOnRequest(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.ForceNextDownloads = 1
	v := video()
	v.PrivacyStatus = models.PrivacyUnlisted

	verdict := h.filter.Check(context.Background(), Candidate{Video: v, Channel: ch})
	assert.True(t, verdict.Allowed)
	assert.Zero(t, h.counters.forceDecrements)

	verdict = h.filter.Requested(context.Background(), Candidate{Video: v, Channel: ch})
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 1, h.counters.forceDecrements)
}

func TestVideoForceDoesNotConsumeChannelCredit(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.ForceNextDownloads = 3
	v := video()
	v.ForceDownload = true

	verdict := h.filter.Requested(context.Background(), Candidate{Video: v, Channel: ch})
	assert.True(t, verdict.Allowed)
	assert.Zero(t, h.counters.forceDecrements)
}

func TestTitleForceBeatsTitleSkip(t *testing.T) {
	// A title matching both lists downloads: the force path is evaluated
	// before the skip list ever runs.
	h := newHarness()
	ch := channel()
	ch.TitleForces = "ordinary"
	ch.TitleSkips = "upload"
	v := video()

	verdict := h.filter.Requested(context.Background(), Candidate{Video: v, Channel: ch})
	assert.True(t, verdict.Allowed)
	assert.Zero(t, h.counters.forceDecrements)
}

func TestTitleSkipRejects(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.TitleSkips = "ORDINARY"

	verdict := h.filter.Check(context.Background(), Candidate{Video: video(), Channel: ch})
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "title skip match", verdict.Reason)
}

func TestDurationBounds(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.DurationMinimumVideos = 120
	ch.DurationMaximumVideos = 3600

	short := video()
	short.Duration = 30
	verdict := h.filter.Check(context.Background(), Candidate{Video: short, Channel: ch})
	assert.False(t, verdict.Allowed)

	long := video()
	long.Duration = 7200
	verdict = h.filter.Check(context.Background(), Candidate{Video: long, Channel: ch})
	assert.False(t, verdict.Allowed)

	ok := video()
	ok.Duration = 600
	verdict = h.filter.Check(context.Background(), Candidate{Video: ok, Channel: ch})
	assert.True(t, verdict.Allowed)
}

func TestShortsIgnoreDurationBounds(t *testing.T) {
	h := newHarness()
	ch := channel()
	ch.DurationMinimumVideos = 120

	short := video()
	short.SetKind(models.KindShort)
	short.Duration = 15
	verdict := h.filter.Check(context.Background(), Candidate{Video: short, Channel: ch})
	assert.True(t, verdict.Allowed)
}

func TestPlaylistChannelRestriction(t *testing.T) {
	h := newHarness()
	ch := channel()
	other := uuid.New()
	pl := &models.Playlist{ID: uuid.New(), RestrictToAssignedChannel: true, ChannelID: &ch.ID}

	v := video()
	v.ChannelID = &other
	verdict := h.filter.Check(context.Background(), Candidate{Video: v, Channel: ch, Playlist: pl})
	assert.False(t, verdict.Allowed)

	v.ChannelID = &ch.ID
	verdict = h.filter.Check(context.Background(), Candidate{Video: v, Channel: ch, Playlist: pl})
	assert.True(t, verdict.Allowed)
}
