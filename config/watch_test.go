package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatch_Reload(t *testing.T) {
	if testing.Short() {
		t.Skip("polls the filesystem")
	}

	path := filepath.Join(t.TempDir(), "repo.yaml")
	writeAtomic(t, path, "max_weight: 1GiB\n")

	changes := make(chan Config, 8)
	errs := make(chan error, 8)
	w, err := Watch(path, 100*time.Millisecond,
		func(c Config) {
			select {
			case changes <- c:
			default:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// Let the watcher record the current modification time.
	time.Sleep(1500 * time.Millisecond)

	writeAtomic(t, path, "max_weight: lots\n")
	select {
	case err := <-errs:
		assert.True(t, IsInvalidConfig(err), "unexpected error %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("invalid file was not reported")
	}

	time.Sleep(1500 * time.Millisecond)
	writeAtomic(t, path, "max_weight: 2GiB\npolicy: 2q\n")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.MaxWeight == "2GiB" {
				assert.Equal(t, Policy2Q, c.Policy)
				return
			}
		case <-deadline:
			t.Fatal("updated config was not delivered")
		}
	}
}

func TestWatch_RejectsUnknownExtension(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "repo.toml"), time.Second, func(Config) {}, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}
