package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "memdir", cfg.MountPoint)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "/bin/sh", cfg.Shell)
	assert.Equal(t, "undoshell: ", cfg.Prompt)
	assert.Equal(t, 3*time.Second, cfg.MountTimeout)
	assert.Equal(t, os.Getuid(), cfg.UID)
	assert.Equal(t, os.Getgid(), cfg.GID)
	assert.Equal(t, int64(64<<20), cfg.MaxFileBytes)
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("UNDOFS_MOUNT", "/mnt/scratch")
	t.Setenv("PUID", "1234")
	t.Setenv("PGID", "99")
	t.Setenv("UNDOFS_MOUNT_TIMEOUT", "500ms")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/scratch", cfg.MountPoint)
	assert.Equal(t, 500*time.Millisecond, cfg.MountTimeout)
	uid, gid := cfg.Owner()
	assert.Equal(t, uint32(1234), uid)
	assert.Equal(t, uint32(99), gid)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	envFile := filepath.Join(dir, "undofs.env")
	require.NoError(t, os.WriteFile(envFile, []byte("UNDOFS_SHELL=/bin/bash\n"), 0o600))
	t.Setenv("UNDOFS_SHELL", "")
	os.Unsetenv("UNDOFS_SHELL")

	cfg, err := Load(envFile, "")
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", cfg.Shell)

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.env"), "")
		assert.Error(t, err)
	})
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "undofs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mount: /tmp/undo\nprompt: \"> \"\n"), 0o600))

	cfg, err := Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/undo", cfg.MountPoint)
	assert.Equal(t, "> ", cfg.Prompt)
	assert.Equal(t, "/bin/sh", cfg.Shell)
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("UNDOFS_MOUNT_TIMEOUT", "0s")

	_, err := Load("", "")
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeOwner(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("UID", func(t *testing.T) {
		t.Setenv("PUID", "4294967296")
		_, err := Load("", "")
		assert.ErrorContains(t, err, "uid")
	})
	t.Run("GID", func(t *testing.T) {
		t.Setenv("PGID", "4294967296")
		_, err := Load("", "")
		assert.ErrorContains(t, err, "gid")
	})
	t.Run("LargestAccepted", func(t *testing.T) {
		t.Setenv("PUID", "4294967295")
		cfg, err := Load("", "")
		require.NoError(t, err)
		uid, _ := cfg.Owner()
		assert.Equal(t, uint32(4294967295), uid)
	})
}

func TestOwnerClamps(t *testing.T) {
	cfg := &Config{UID: -5, GID: 1 << 40}
	uid, gid := cfg.Owner()
	assert.Equal(t, uint32(0), uid)
	assert.Equal(t, uint32(4294967295), gid)
}

func TestLoadMaxFileSize(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("UNDOFS_MAX_FILE_SIZE", "1KiB")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.MaxFileBytes)

	for _, bad := range []string{"0", "lots", "20EiB"} {
		t.Setenv("UNDOFS_MAX_FILE_SIZE", bad)
		_, err := Load("", "")
		assert.Error(t, err, bad)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
