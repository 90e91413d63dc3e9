// Package version reads the build's version stamp. The stamp file is
// written by the release pipeline next to the binary; a missing or
// malformed file falls back to the dev placeholder so startup never
// blocks on it.
package version

import (
	"encoding/json"
	"log"
	"os"
)

const (
	stampFile   = "version.json"
	devFallback = "0.0.0"
)

type Info struct {
	Version string `json:"version"`
}

// Load reads the version stamp from the working directory.
func Load() Info {
	fallback := Info{Version: devFallback}
	data, err := os.ReadFile(stampFile)
	if err != nil {
		log.Printf("Version: no %s, running as %s: %v", stampFile, devFallback, err)
		return fallback
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Printf("Version: unreadable %s, running as %s: %v", stampFile, devFallback, err)
		return fallback
	}
	if info.Version == "" {
		info.Version = devFallback
	}
	return info
}
