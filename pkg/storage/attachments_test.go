package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *AttachmentStore {
	t.Helper()
	store, err := NewAttachmentStore(t.TempDir(), 1024)
	require.NoError(t, err)
	return store
}

func TestAttachmentStoreSaveAndDelete(t *testing.T) {
	store := newStore(t)

	rel, original, err := store.Save("doctor note.pdf", 11, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)
	assert.Equal(t, "doctor note.pdf", original)
	assert.True(t, strings.HasPrefix(rel, filepath.Join("sickleave")+string(os.PathSeparator)))
	assert.True(t, strings.HasSuffix(rel, ".pdf"))

	file, err := store.Open(rel)
	require.NoError(t, err)
	file.Close()

	require.NoError(t, store.Delete(rel))
	// deleting again is a no-op
	require.NoError(t, store.Delete(rel))
}

func TestAttachmentStoreRejectsBadUploads(t *testing.T) {
	store := newStore(t)

	_, _, err := store.Save("", 3, bytes.NewReader([]byte("abc")))
	assert.Error(t, err)

	_, _, err = store.Save("virus.exe", 3, bytes.NewReader([]byte("abc")))
	assert.Error(t, err)

	_, _, err = store.Save("big.pdf", 2048, bytes.NewReader(bytes.Repeat([]byte("a"), 2048)))
	assert.Error(t, err)
}

func TestAttachmentStoreRefusesTraversal(t *testing.T) {
	store := newStore(t)

	err := store.Delete("../outside.pdf")
	assert.Error(t, err)

	_, err = store.Open("/etc/passwd")
	assert.Error(t, err)
}

func TestAttachmentStoreEnforcesStreamedSizeLimit(t *testing.T) {
	store := newStore(t)

	// declared size lies; the streamed copy still enforces the cap
	_, _, err := store.Save("sneaky.pdf", 10, bytes.NewReader(bytes.Repeat([]byte("a"), 4096)))
	assert.Error(t, err)
}
