package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := OpenSQLite(filepath.Join(dir, "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "prefs.yaml")),
		"sqlite": sqlite,
	}
}

func TestStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.GetString("linux_installed_version_stable")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.SetString("linux_installed_version_stable", "0.0.3"))
			require.NoError(t, store.SetString("linux_installed_version_stable", "0.0.4"))
			v, ok, err := store.GetString("linux_installed_version_stable")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "0.0.4", v)

			require.NoError(t, store.SetString("empty", ""))
			v, ok, err = store.GetString("empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, v)

			require.NoError(t, store.Remove("linux_installed_version_stable"))
			require.NoError(t, store.Remove("never-set"))
			_, ok, err = store.GetString("linux_installed_version_stable")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, NewFileStore(path).SetString("k", `{"version":"0.0.3"}`))

	v, ok, err := NewFileStore(path).GetString("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"version":"0.0.3"}`, v)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))
	_, _, err := NewFileStore(path).GetString("k")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("", filepath.Join(t.TempDir(), "p.yaml"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)
}
