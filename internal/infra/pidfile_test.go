package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteReadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "rtsprec.pid")
	store := NewPIDFile(path)

	_, err := store.Read()
	assert.ErrorIs(t, err, ErrNoPIDRecord)

	require.NoError(t, store.Write(4242))
	pid, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	// Overwrite keeps a single record
	require.NoError(t, store.Write(4343))
	pid, err = store.Read()
	require.NoError(t, err)
	assert.Equal(t, 4343, pid)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	require.NoError(t, store.Clear())
	_, err = store.Read()
	assert.ErrorIs(t, err, ErrNoPIDRecord)

	// Clearing twice is fine
	assert.NoError(t, store.Clear())
}

func TestPIDFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtsprec.pid")
	store := NewPIDFile(path)

	for _, content := range []string{"", "abc", "-5", "0\n"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := store.Read()
		assert.Error(t, err, "content %q", content)
		assert.NotErrorIs(t, err, ErrNoPIDRecord)
	}

	require.NoError(t, os.WriteFile(path, []byte("  77 \n"), 0o644))
	pid, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, 77, pid)
}

func TestPIDFile_RejectsInvalidPID(t *testing.T) {
	store := NewPIDFile(filepath.Join(t.TempDir(), "rtsprec.pid"))
	assert.Error(t, store.Write(0))
	assert.Error(t, store.Write(-1))
}
