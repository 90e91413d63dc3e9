package version

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadFallsBackWithoutStamp(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Equal(t, "0.0.0", Load().Version)
}

func TestLoadReadsStamp(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(stampFile, []byte(`{"version":"1.4.2"}`), 0o644))
	assert.Equal(t, "1.4.2", Load().Version)
}

func TestLoadFallsBackOnEmptyStamp(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(stampFile, []byte(`{}`), 0o644))
	assert.Equal(t, "0.0.0", Load().Version)
}
