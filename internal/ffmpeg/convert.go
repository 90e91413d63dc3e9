// Package ffmpeg wraps the external converter binary for the two
// post-download conversions: mkv→mp4 remux and audio extraction.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Converter struct {
	ffmpegPath string
}

func NewConverter(ffmpegPath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{ffmpegPath: ffmpegPath}
}

// ConvertToMp4 remuxes an mkv download into an mp4 container without
// re-encoding and returns the new path. Conversions can run for many
// minutes; the caller holds the video's processing lock throughout.
func (c *Converter) ConvertToMp4(ctx context.Context, filepath string) (string, error) {
	out := strings.TrimSuffix(filepath, ".mkv") + ".mp4"
	args := []string{
		"-hide_banner", "-y",
		"-i", filepath,
		"-codec", "copy",
		out,
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg mp4 convert: %w (output: %s)", err, lastLines(string(output), 20))
	}
	return out, nil
}

// ConvertToAudio extracts an mp3 track from the download and returns the
// audio file path.
func (c *Converter) ConvertToAudio(ctx context.Context, filepath string) (string, error) {
	ext := filepath[strings.LastIndex(filepath, "."):]
	out := strings.TrimSuffix(filepath, ext) + ".mp3"
	args := []string{
		"-hide_banner", "-y",
		"-i", filepath,
		"-vn",
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		out,
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg audio convert: %w (output: %s)", err, lastLines(string(output), 20))
	}
	return out, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
