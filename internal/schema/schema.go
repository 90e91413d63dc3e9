// Package schema renders the configurable directory and filename templates
// used to place archived files in storage. Templates see a restricted
// context of video, channel, and playlist fields only.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/clipvault/clipvault/internal/models"
)

var (
	// ErrDirectorySchemaInvalid marks a directory template that rendered empty.
	ErrDirectorySchemaInvalid = errors.New("directory schema rendered empty")
	// ErrFilenameSchemaInvalid marks a filename template that rendered empty.
	ErrFilenameSchemaInvalid = errors.New("filename schema rendered empty")
)

// System defaults used when the entity-level schema is missing or invalid.
const (
	DefaultDirectorySchema      = "{{ .Channel.Name }}"
	DefaultVideoDirectorySchema = "{{ .Channel.Name }}/{{ .Video.UploadYear }}"
	DefaultFilenameSchema       = "{{ .Video.Title }} [{{ .Video.ProviderID }}]"
)

// Context is the sandboxed data a schema template may reference.
type Context struct {
	Video    videoContext
	Channel  channelContext
	Playlist playlistContext
}

type videoContext struct {
	Title      string
	ProviderID string
	UploadDate string
	UploadYear string
	Quality    int
	Kind       string
}

type channelContext struct {
	Name       string
	ProviderID string
}

type playlistContext struct {
	Title      string
	ProviderID string
}

// NewContext builds the template context. Channel and playlist may be nil.
func NewContext(video *models.Video, channel *models.Channel, playlist *models.Playlist) Context {
	ctx := Context{}
	if video != nil {
		ctx.Video = videoContext{
			Title:      video.Title,
			ProviderID: video.ProviderID,
			Quality:    video.Quality,
			Kind:       string(video.Kind()),
		}
		if video.UploadDate != nil {
			ctx.Video.UploadDate = video.UploadDate.Format("2006-01-02")
			ctx.Video.UploadYear = video.UploadDate.Format("2006")
		} else {
			ctx.Video.UploadYear = time.Now().Format("2006")
		}
	}
	if channel != nil {
		ctx.Channel = channelContext{Name: channel.Name, ProviderID: channel.ProviderID}
	} else {
		// Playlist entries may carry no channel; the directory defaults
		// must still render a usable segment for them.
		ctx.Channel = channelContext{Name: "No Channel"}
	}
	if playlist != nil {
		ctx.Playlist = playlistContext{Title: playlist.Title, ProviderID: playlist.ProviderID}
	}
	return ctx
}

func render(schema string, ctx Context) (string, error) {
	tmpl, err := template.New("schema").Option("missingkey=error").Parse(schema)
	if err != nil {
		return "", fmt.Errorf("parse schema: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// RenderDirectory renders the entity's directory schema, falling back to
// the system default only when the entity-level schema was at fault.
func RenderDirectory(schema string, ctx Context) (string, error) {
	if schema == "" {
		schema = DefaultDirectorySchema
	} else if out, err := render(schema, ctx); err == nil && out != "" {
		return out, nil
	} else {
		// Entity schema failed; report but fall through to the default.
		out, derr := render(DefaultDirectorySchema, ctx)
		if derr != nil || out == "" {
			return "", ErrDirectorySchemaInvalid
		}
		return out, nil
	}
	out, err := render(schema, ctx)
	if err != nil || out == "" {
		return "", ErrDirectorySchemaInvalid
	}
	return out, nil
}

// RenderFilename renders the entity's filename schema with the same
// fallback discipline as RenderDirectory.
func RenderFilename(schema string, ctx Context) (string, error) {
	if schema == "" {
		schema = DefaultFilenameSchema
	} else if out, err := render(schema, ctx); err == nil && out != "" {
		return out, nil
	} else {
		out, derr := render(DefaultFilenameSchema, ctx)
		if derr != nil || out == "" {
			return "", ErrFilenameSchemaInvalid
		}
		return out, nil
	}
	out, err := render(schema, ctx)
	if err != nil || out == "" {
		return "", ErrFilenameSchemaInvalid
	}
	return out, nil
}
