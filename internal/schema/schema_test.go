package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipvault/clipvault/internal/models"
)

func testContext() Context {
	uploaded := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	video := &models.Video{
		Title:      "Deep Dive",
		ProviderID: "abc123",
		Quality:    1080,
		UploadDate: &uploaded,
	}
	video.SetKind(models.KindVideo)
	channel := &models.Channel{Name: "Tech Channel", ProviderID: "UCxyz"}
	return NewContext(video, channel, nil)
}

func TestRenderDirectoryDefault(t *testing.T) {
	out, err := RenderDirectory("", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Tech Channel", out)
}

func TestRenderDirectoryCustom(t *testing.T) {
	out, err := RenderDirectory("{{ .Channel.Name }}/{{ .Video.UploadYear }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Tech Channel/2024", out)
}

func TestRenderFilenameDefault(t *testing.T) {
	out, err := RenderFilename("", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Deep Dive [abc123]", out)
}

func TestInvalidEntitySchemaFallsBackToDefault(t *testing.T) {
	out, err := RenderDirectory("{{ .Nope.Missing }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Tech Channel", out)

	out, err = RenderFilename("{{ .Bad.Field }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Deep Dive [abc123]", out)
}

func TestEmptyRenderFallsBackToDefault(t *testing.T) {
	out, err := RenderDirectory("{{ if false }}x{{ end }}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Tech Channel", out)
}

func TestNoChannelRendersPlaceholderDirectory(t *testing.T) {
	// Playlist sync creates videos with no channel; the directory defaults
	// must still produce a segment for them instead of failing every
	// download.
	video := &models.Video{Title: "T", ProviderID: "p"}
	ctx := NewContext(video, nil, nil)

	out, err := RenderDirectory("", ctx)
	require.NoError(t, err)
	assert.Equal(t, "No Channel", out)

	out, err = RenderDirectory("{{ .Broken.Thing }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "No Channel", out)
}

func TestUploadYearFallsBackToCurrentYear(t *testing.T) {
	video := &models.Video{Title: "T", ProviderID: "p"}
	ctx := NewContext(video, nil, nil)
	assert.Equal(t, time.Now().Format("2006"), ctx.Video.UploadYear)
}

func TestContextExposesKind(t *testing.T) {
	video := &models.Video{Title: "T", ProviderID: "p"}
	video.SetKind(models.KindShort)
	ctx := NewContext(video, nil, nil)

	out, err := RenderFilename("{{ .Video.Kind }}/{{ .Video.Title }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "short/T", out)
}
