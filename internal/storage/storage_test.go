package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetValidNameStripsReservedCharacters(t *testing.T) {
	l := NewLocal("/tmp")
	tests := []struct {
		in   string
		want string
	}{
		{`Channel: The "Best" <Ever>`, "Channel The Best Ever"},
		{"What?!*", "What!"},
		{"plain name", "plain name"},
		{"dir/with: colon/file|name", filepath.Join("dir", "with colon", "filename")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.GetValidName(tt.in), tt.in)
	}
}

func TestLocalSaveOpenDelete(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)

	handle, err := l.Save("channel/2026/video [abc].mp4", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.True(t, l.Exists(handle))

	r, err := l.Open(handle)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, l.Delete(handle))
	assert.False(t, l.Exists(handle))
	_, err = l.Open(handle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalMove(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root)

	handle, err := l.Save("old/name.mp4", strings.NewReader("bytes"))
	require.NoError(t, err)

	newHandle, err := l.Move(handle, "new/location.mp4")
	require.NoError(t, err)
	assert.False(t, l.Exists(handle))
	assert.True(t, l.Exists(newHandle))

	_, err = os.Stat(filepath.Join(root, "new", "location.mp4"))
	assert.NoError(t, err)
}

func TestLocalDeleteMissingIsNil(t *testing.T) {
	l := NewLocal(t.TempDir())
	assert.NoError(t, l.Delete("never/stored.mp4"))
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()

	handle, err := m.Save("a/b.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, m.Exists(handle))

	moved, err := m.Move(handle, "c/d.mp4")
	require.NoError(t, err)
	assert.False(t, m.Exists(handle))

	r, err := m.Open(moved)
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "x", string(data))

	_, err = m.Move("missing", "anywhere")
	assert.ErrorIs(t, err, ErrNotFound)
}
