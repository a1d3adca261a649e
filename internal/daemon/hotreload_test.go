package daemon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/campusbell/internal/config"
)

func writeConfig(t *testing.T, path, body string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestConfigWatcher_ReloadsValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusbelld.toml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "[transport]\nkind = \"memory\"\n", base)

	initial, err := config.LoadDaemonConfigFrom(path)
	require.NoError(t, err)

	w := NewConfigWatcher(path, discardLogger())
	w.SetPollInterval(10 * time.Millisecond)

	var (
		mu       sync.Mutex
		reloaded []*config.DaemonConfig
	)
	w.SetReloadCallback(func(c *config.DaemonConfig) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, c)
	})

	require.NoError(t, w.Start(t.Context(), initial))
	defer w.Stop()
	assert.Same(t, initial, w.GetCurrentConfig())

	writeConfig(t, path, "[transport]\nkind = \"memory\"\n[sound]\nvolume = 0.8\n", base.Add(time.Minute))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0.8, w.GetCurrentConfig().Sound.Volume)
}

func TestConfigWatcher_KeepsConfigOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusbelld.toml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "[transport]\nkind = \"memory\"\n", base)

	initial, err := config.LoadDaemonConfigFrom(path)
	require.NoError(t, err)

	w := NewConfigWatcher(path, discardLogger())
	w.SetPollInterval(10 * time.Millisecond)

	errCh := make(chan error, 1)
	w.SetErrorCallback(func(err error) { errCh <- err })
	w.SetReloadCallback(func(*config.DaemonConfig) { t.Error("invalid config must not be applied") })

	require.NoError(t, w.Start(t.Context(), initial))
	defer w.Stop()

	writeConfig(t, path, "[transport]\nkind = \"memory\"\n[sound]\nvolume = 4.0\n", base.Add(time.Minute))

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "volume")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a validation error")
	}
	assert.Same(t, initial, w.GetCurrentConfig())
}

func TestConfigWatcher_StartStopIdempotent(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	w.Stop()

	require.NoError(t, w.Start(t.Context(), config.DefaultDaemonConfig()))
	require.NoError(t, w.Start(t.Context(), nil))
	w.Stop()
	w.Stop()
}
