package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// YtdlpClient shells out to yt-dlp. All metadata calls share one global
// rate limiter so bursts from concurrent workers never hammer the provider.
type YtdlpClient struct {
	binPath string
	limiter *rate.Limiter
}

// NewYtdlpClient creates a client limited to requestsPerSecond metadata
// calls across all workers.
func NewYtdlpClient(binPath string, requestsPerSecond float64) *YtdlpClient {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &YtdlpClient{
		binPath: binPath,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

const metadataTimeout = 60 * time.Second

func (c *YtdlpClient) VideoDetails(ctx context.Context, url string, opts VideoDetailsOptions) (*VideoDetails, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	args := []string{"--no-warnings", "--dump-json", "--skip-download"}
	if opts.Quiet {
		args = append(args, "--quiet")
	}
	if opts.WriteInfoJSON {
		args = append(args, "--write-info-json")
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	args = append(args, url)

	output, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var details VideoDetails
	if err := json.Unmarshal(output, &details); err != nil {
		return nil, fmt.Errorf("parse video details: %w", err)
	}
	return &details, nil
}

// PlaylistDetails returns nil with no error when the playlist is gone so
// callers can count not-found failures distinctly from transport errors.
func (c *YtdlpClient) PlaylistDetails(ctx context.Context, url string) (*PlaylistDetails, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	args := []string{"--quiet", "--no-warnings", "--flat-playlist", "--dump-single-json", url}
	output, err := c.run(ctx, args)
	if err != nil {
		if contains(strings.ToLower(err.Error()), "does not exist", "404", "playlist unavailable") {
			return nil, nil
		}
		return nil, err
	}
	var details PlaylistDetails
	if err := json.Unmarshal(output, &details); err != nil {
		return nil, fmt.Errorf("parse playlist details: %w", err)
	}
	return &details, nil
}

func (c *YtdlpClient) ChannelDetails(ctx context.Context, url string) (*ChannelDetails, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	args := []string{"--quiet", "--no-warnings", "--flat-playlist", "--playlist-items", "0", "--dump-single-json", url}
	output, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var details ChannelDetails
	if err := json.Unmarshal(output, &details); err != nil {
		return nil, fmt.Errorf("parse channel details: %w", err)
	}
	return &details, nil
}

// ChannelEntries lists a channel's uploads, one JSON object per line.
func (c *YtdlpClient) ChannelEntries(ctx context.Context, url string, limit int) ([]ChannelEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	args := []string{"--quiet", "--no-warnings", "--flat-playlist", "--dump-json"}
	if limit > 0 {
		args = append(args, "--playlist-items", fmt.Sprintf("1:%d", limit))
	}
	args = append(args, url)

	output, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	var entries []ChannelEntry
	for _, line := range bytes.Split(output, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry ChannelEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("Provider: skipping unparseable entry line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Download fetches the video into the cache directory. Downloads carry no
// fixed timeout; a stale run is reclaimed when the processing lock's TTL
// lapses.
func (c *YtdlpClient) Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	outputTemplate := filepath.Join(opts.CacheDir, "%(id)s.%(ext)s")
	args := []string{
		"--quiet", "--no-warnings", "--no-simulate",
		"--print", "after_move:filepath",
		"-o", outputTemplate,
	}
	switch {
	case opts.MaxQuality || opts.Quality <= 0:
		args = append(args, "--format", "bestvideo+bestaudio/best")
	default:
		args = append(args, "--format",
			fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", opts.Quality, opts.Quality))
	}
	if opts.WriteInfoJSON {
		args = append(args, "--write-info-json")
	}
	if opts.WriteThumbnail {
		args = append(args, "--write-thumbnail", "--convert-thumbnails", "jpg")
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	if opts.ProxyURL != "" {
		args = append(args, "--proxy", opts.ProxyURL)
	}
	if opts.RateLimitKBs > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%dK", opts.RateLimitKBs))
	}
	if opts.DownloadComments {
		args = append(args, "--write-comments")
	}
	args = append(args, url)

	started := time.Now()
	output, err := c.run(ctx, args)
	finished := time.Now()
	if err != nil {
		return nil, err
	}

	result := &DownloadResult{DownloadStarted: started, DownloadFinished: finished}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "NA" {
			continue
		}
		if result.Filepath == "" {
			result.Filepath = line
		}
		result.RequestedDownloads = append(result.RequestedDownloads, RequestedDownload{
			Filepath: line,
			Ext:      strings.TrimPrefix(filepath.Ext(line), "."),
		})
	}
	if result.Filepath == "" {
		return nil, &Error{Class: ClassUnknown, Message: "download produced no file"}
	}
	if opts.WriteInfoJSON {
		ext := filepath.Ext(result.Filepath)
		result.InfoJSONFilename = strings.TrimSuffix(result.Filepath, ext) + ".info.json"
	}
	if opts.WriteThumbnail {
		ext := filepath.Ext(result.Filepath)
		result.ThumbnailFilename = strings.TrimSuffix(result.Filepath, ext) + ".jpg"
	}
	return result, nil
}

// DownloadComments fetches only the comment sidecar for a video and
// returns the info.json path carrying them.
func (c *YtdlpClient) DownloadComments(ctx context.Context, url string, opts VideoDetailsOptions) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	args := []string{"--quiet", "--no-warnings", "--skip-download", "--write-comments",
		"--print", "after_move:infojson_filename"}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	args = append(args, url)
	output, err := c.run(ctx, args)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (c *YtdlpClient) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, Classify(string(exitErr.Stderr))
		}
		return nil, &Error{Class: ClassUnavailable, Message: err.Error()}
	}
	return output, nil
}
