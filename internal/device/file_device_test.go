package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-zdb/internal/services"
)

func writeTestImage(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "pool.img")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.img"))
	assert.ErrorIs(t, err, services.ErrDeviceUnavailable)
	assert.ErrorIs(t, err, services.ErrIO)
}

func TestFileDeviceReadBlock(t *testing.T) {
	path := writeTestImage(t, 4096)
	dev, err := OpenFile(path)
	require.NoError(t, err)
	defer dev.Close()
	ctx := context.Background()

	assert.Equal(t, path, dev.Path())

	got, err := dev.ReadBlock(ctx, 0, 256, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, got)

	size, err := dev.Size(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), size)
}

func TestFileDeviceReadErrors(t *testing.T) {
	dev, err := OpenFile(writeTestImage(t, 1024))
	require.NoError(t, err)
	defer dev.Close()
	ctx := context.Background()

	// Only vdev 0 exists behind a file image.
	_, err = dev.ReadBlock(ctx, 1, 0, 16)
	assert.ErrorIs(t, err, services.ErrDeviceUnavailable)
	_, err = dev.Size(1)
	assert.ErrorIs(t, err, services.ErrDeviceUnavailable)

	_, err = dev.ReadBlock(ctx, 0, 1020, 16)
	assert.ErrorIs(t, err, services.ErrDeviceUnavailable)

	// An offset large enough to wrap offset+length must still be
	// rejected, not read through a wrapped bound.
	_, err = dev.ReadBlock(ctx, 0, ^uint64(0)-8, 16)
	assert.ErrorIs(t, err, services.ErrDeviceUnavailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = dev.ReadBlock(cancelled, 0, 0, 16)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadPoolConfigDefaults(t *testing.T) {
	// Run from an empty directory so no config file is picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	config, err := LoadPoolConfig()
	require.NoError(t, err)

	assert.Empty(t, config.Image)
	assert.Equal(t, 0, config.LabelIndex)
	assert.Equal(t, 1<<20, config.MaxBlockSize)
	assert.False(t, config.VerifyChecksums)
}
