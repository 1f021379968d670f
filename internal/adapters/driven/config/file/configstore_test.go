package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *ConfigStore {
	t.Helper()
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	store.lookup = func(string) (string, bool) { return "", false }
	return store
}

func withEnv(store *ConfigStore, env map[string]string) {
	store.lookup = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_HomeFromEnv(t *testing.T) {
	home := filepath.Join(t.TempDir(), "atlas-home")
	t.Setenv(EnvHome, home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml"), store.Path())
	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefaultDir(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}

	dir, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".atlas"), dir)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not [valid toml"), 0600))

	_, err := NewConfigStore(tmpDir)
	assert.Error(t, err)
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Set("confluence.base_url", "https://wiki.example.com/wiki"))

	val, ok := store.Get("confluence.base_url")
	assert.True(t, ok)
	assert.Equal(t, "https://wiki.example.com/wiki", val)

	val, ok = store.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set("search.top_k", 10))
	require.NoError(t, store.Set("search.semantic_weight", 0.7))
	require.NoError(t, store.Set("schedule.enabled", true))
	require.NoError(t, store.Set("confluence.spaces", []string{"OPS", "DEV"}))
	require.NoError(t, store.Set("server.addr", ":8080"))

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, ":8080", store.GetString("server.addr"))
		assert.Empty(t, store.GetString("search.top_k"), "wrong type")
		assert.Empty(t, store.GetString("nonexistent"))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 10, store.GetInt("search.top_k"))
		assert.Zero(t, store.GetInt("schedule.enabled"), "wrong type")
		assert.Zero(t, store.GetInt("nonexistent"))
	})

	t.Run("float widens integers", func(t *testing.T) {
		assert.InDelta(t, 0.7, store.GetFloat("search.semantic_weight"), 1e-9)
		assert.InDelta(t, 10.0, store.GetFloat("search.top_k"), 1e-9)
		assert.Zero(t, store.GetFloat("schedule.enabled"))
		assert.Zero(t, store.GetFloat("nonexistent"))
	})

	t.Run("bool", func(t *testing.T) {
		assert.True(t, store.GetBool("schedule.enabled"))
		assert.False(t, store.GetBool("search.top_k"))
		assert.False(t, store.GetBool("nonexistent"))
	})

	t.Run("string slice", func(t *testing.T) {
		assert.Equal(t, []string{"OPS", "DEV"}, store.GetStringSlice("confluence.spaces"))
		assert.Equal(t, []string{":8080"}, store.GetStringSlice("server.addr"))
		assert.Nil(t, store.GetStringSlice("search.top_k"))
		assert.Nil(t, store.GetStringSlice("nonexistent"))
	})
}

func TestConfigStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store1.Set("confluence.base_url", "https://wiki.example.com/wiki"))
	require.NoError(t, store1.Set("confluence.spaces", []string{"OPS", "DEV"}))
	require.NoError(t, store1.Set("search.top_k", 25))
	require.NoError(t, store1.Set("search.keyword_weight", 0.3))
	require.NoError(t, store1.Set("schedule.enabled", true))

	// Create new store instance - should load from file
	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	withEnv(store2, nil)

	assert.Equal(t, "https://wiki.example.com/wiki", store2.GetString("confluence.base_url"))
	assert.Equal(t, []string{"OPS", "DEV"}, store2.GetStringSlice("confluence.spaces"))
	assert.Equal(t, 25, store2.GetInt("search.top_k"))
	assert.InDelta(t, 0.3, store2.GetFloat("search.keyword_weight"), 1e-9)
	assert.True(t, store2.GetBool("schedule.enabled"))
}

func TestConfigStore_WritesSectionTables(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set("confluence.base_url", "https://wiki.example.com/wiki"))
	require.NoError(t, store.Set("search.top_k", 10))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[confluence]")
	assert.Contains(t, string(data), "[search]")
	assert.NotContains(t, string(data), "confluence.base_url")
}

func TestConfigStore_ReadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[confluence]
base_url = "https://wiki.example.com/wiki"
spaces = ["OPS", "DEV"]

[search]
top_k = 15
semantic_weight = 0.6

[schedule]
enabled = true
cron = "*/30 * * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	withEnv(store, nil)

	assert.Equal(t, "https://wiki.example.com/wiki", store.GetString("confluence.base_url"))
	assert.Equal(t, []string{"OPS", "DEV"}, store.GetStringSlice("confluence.spaces"))
	assert.Equal(t, 15, store.GetInt("search.top_k"))
	assert.InDelta(t, 0.6, store.GetFloat("search.semantic_weight"), 1e-9)
	assert.True(t, store.GetBool("schedule.enabled"))
	assert.Equal(t, "*/30 * * * *", store.GetString("schedule.cron"))
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set("confluence.token", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestConfigStore_EnvOverrides(t *testing.T) {
	t.Run("prefixed variable shadows the file", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("search.top_k", 10))
		withEnv(store, map[string]string{"ATLAS_SEARCH_TOP_K": "42"})

		assert.Equal(t, 42, store.GetInt("search.top_k"))
		val, ok := store.Get("search.top_k")
		assert.True(t, ok)
		assert.Equal(t, "42", val)
	})

	t.Run("strings convert to the requested type", func(t *testing.T) {
		store := newStore(t)
		withEnv(store, map[string]string{
			"ATLAS_SEARCH_SEMANTIC_WEIGHT": "0.25",
			"ATLAS_SCHEDULE_ENABLED":       "true",
			"ATLAS_CONFLUENCE_SPACES":      "OPS, DEV,,",
		})

		assert.InDelta(t, 0.25, store.GetFloat("search.semantic_weight"), 1e-9)
		assert.True(t, store.GetBool("schedule.enabled"))
		assert.Equal(t, []string{"OPS", "DEV"}, store.GetStringSlice("confluence.spaces"))
	})

	t.Run("conventional aliases", func(t *testing.T) {
		store := newStore(t)
		withEnv(store, map[string]string{
			"CONFLUENCE_TOKEN": "pat",
			"OPENAI_API_KEY":   "sk-test",
		})

		assert.Equal(t, "pat", store.GetString("confluence.token"))
		assert.Equal(t, "sk-test", store.GetString("embedding.api_key"))
	})

	t.Run("prefixed variable beats alias", func(t *testing.T) {
		store := newStore(t)
		withEnv(store, map[string]string{
			"CONFLUENCE_TOKEN":       "alias",
			"ATLAS_CONFLUENCE_TOKEN": "prefixed",
		})

		assert.Equal(t, "prefixed", store.GetString("confluence.token"))
	})

	t.Run("empty alias is ignored", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("confluence.token", "from-file"))
		withEnv(store, map[string]string{"CONFLUENCE_TOKEN": ""})

		assert.Equal(t, "from-file", store.GetString("confluence.token"))
	})

	t.Run("overrides are never persisted", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewConfigStore(tmpDir)
		require.NoError(t, err)
		withEnv(store, map[string]string{"CONFLUENCE_TOKEN": "pat"})
		require.NoError(t, store.Set("search.top_k", 5))

		data, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		assert.NotContains(t, string(data), "pat")
	})
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "ATLAS_CONFLUENCE_BASE_URL", EnvName("confluence.base_url"))
	assert.Equal(t, "ATLAS_SEARCH_MAX_CITATIONS_PER_RESULT", EnvName("search.max_citations_per_result"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := newStore(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("sync.concurrency", n)
			_ = store.GetInt("sync.concurrency")
		}(i)
	}
	wg.Wait()

	val, ok := store.Get("sync.concurrency")
	assert.True(t, ok)
	assert.NotNil(t, val)
}

func TestConfigStore_Load_Reload(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set("server.addr", ":8080"))

	require.NoError(t, os.WriteFile(store.Path(), []byte("[server]\naddr = \":9090\"\n"), 0600))
	require.NoError(t, store.Load())
	assert.Equal(t, ":9090", store.GetString("server.addr"))

	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, store.Load())
	_, ok := store.Get("server.addr")
	assert.False(t, ok)
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), nil, 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Save())
}

func TestNestMap(t *testing.T) {
	flat := map[string]any{"a.b": 1, "a.c": "x", "d": true}
	nested := nestMap(flat)

	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1, "c": "x"}, "d": true}, nested)
	assert.Equal(t, flat, flattenMap(nested, ""))
}
