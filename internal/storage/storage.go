// Package storage abstracts where archived media lands. Handles are opaque
// strings; the local implementation uses paths relative to its root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a handle does not resolve to stored bytes.
var ErrNotFound = errors.New("storage: file not found")

// Storage is the deployed blob contract. Move must work or the rename
// subsystem is unusable.
type Storage interface {
	Save(name string, r io.Reader) (handle string, err error)
	Open(handle string) (io.ReadCloser, error)
	Exists(handle string) bool
	Delete(handle string) error
	Move(oldHandle, newName string) (newHandle string, err error)
	Path(handle string) string
	GetValidName(name string) string
}

// ──────────────────── Local disk ────────────────────

type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Save(name string, r io.Reader) (string, error) {
	name = l.GetValidName(name)
	full := filepath.Join(l.root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("storage mkdir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("storage create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("storage write: %w", err)
	}
	return name, nil
}

func (l *Local) Open(handle string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.root, handle))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func (l *Local) Exists(handle string) bool {
	_, err := os.Stat(filepath.Join(l.root, handle))
	return err == nil
}

func (l *Local) Delete(handle string) error {
	err := os.Remove(filepath.Join(l.root, handle))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) Move(oldHandle, newName string) (string, error) {
	newName = l.GetValidName(newName)
	oldPath := filepath.Join(l.root, oldHandle)
	newPath := filepath.Join(l.root, newName)
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return "", fmt.Errorf("storage mkdir: %w", err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", fmt.Errorf("storage move: %w", err)
	}
	return newName, nil
}

func (l *Local) Path(handle string) string {
	return filepath.Join(l.root, handle)
}

// GetValidName strips characters that break filesystems while keeping the
// directory structure of the name.
func (l *Local) GetValidName(name string) string {
	parts := strings.Split(filepath.ToSlash(name), "/")
	for i, part := range parts {
		parts[i] = sanitizeSegment(part)
	}
	return filepath.Join(parts...)
}

func sanitizeSegment(s string) string {
	replacer := strings.NewReplacer(
		"<", "", ">", "", ":", "", "\"", "", "\\", "",
		"|", "", "?", "", "*", "", "\x00", "",
	)
	s = replacer.Replace(s)
	return strings.TrimSpace(s)
}

// ──────────────────── In-memory ────────────────────

// Memory keeps blobs in a map; it backs the tests.
type Memory struct {
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: map[string][]byte{}}
}

func (m *Memory) Save(name string, r io.Reader) (string, error) {
	name = m.GetValidName(name)
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[name] = data
	return name, nil
}

func (m *Memory) Open(handle string) (io.ReadCloser, error) {
	data, ok := m.files[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *Memory) Exists(handle string) bool {
	_, ok := m.files[handle]
	return ok
}

func (m *Memory) Delete(handle string) error {
	delete(m.files, handle)
	return nil
}

func (m *Memory) Move(oldHandle, newName string) (string, error) {
	data, ok := m.files[oldHandle]
	if !ok {
		return "", ErrNotFound
	}
	newName = m.GetValidName(newName)
	m.files[newName] = data
	delete(m.files, oldHandle)
	return newName, nil
}

func (m *Memory) Path(handle string) string {
	return handle
}

func (m *Memory) GetValidName(name string) string {
	return (&Local{}).GetValidName(name)
}
