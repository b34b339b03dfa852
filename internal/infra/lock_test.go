package infra

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_SingleHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rtsprec.lock")
	first := NewFileLock(path)
	second := NewFileLock(path)

	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, first.Unlock())

	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())

	assert.Equal(t, path, first.Path())
}
