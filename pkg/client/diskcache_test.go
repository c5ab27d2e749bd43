package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCacheRoundtrip(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Save("notifications", []byte(`[{"id":"n-1"}]`)))

	body, ok, err := cache.Load("notifications")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"n-1"}]`, string(body))
}

func TestDiskCacheSaveOverwrites(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Save("projects", []byte(`["old"]`)))
	require.NoError(t, cache.Save("projects", []byte(`["new"]`)))

	body, ok, err := cache.Load("projects")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["new"]`, string(body))
}

func TestDiskCacheMissingKeyIsAMiss(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Load("never-saved")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskCacheKeysAreIndependent(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Save("notifications", []byte("a")))
	require.NoError(t, cache.Save("projects", []byte("b")))

	body, ok, err := cache.Load("notifications")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(body))
}
