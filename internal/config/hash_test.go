package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAndVerifyHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  script: ./s.py\n"), 0644))

	hash, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, hash, 64, "blake3-256 hex digest")

	require.NoError(t, VerifyFileHash(path, hash))

	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  script: ./evil.py\n"), 0644))
	err = VerifyFileHash(path, hash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestLockAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  script: ./s.py\n"), 0644))

	require.NoError(t, GenerateChecksums(path))

	manifest, err := LoadChecksums(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Version)
	assert.Contains(t, manifest.Hashes, "config.yaml")

	// A locked, untouched config loads cleanly.
	_, err = Load(path)
	require.NoError(t, err)

	// Tampering after lock is rejected at load time.
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  script: ./evil.py\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config verification failed")
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksums file not found")
}
