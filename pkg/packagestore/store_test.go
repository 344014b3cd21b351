package packagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func TestFileStore_Store(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	content := []byte("SQLite format 3\x00 package body")

	file, existed, err := store.Store(ctx, bytes.NewReader(content), "")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, sum(content), file.Key)
	assert.Equal(t, int64(len(content)), file.SizeBytes)
	assert.FileExists(t, file.Path)

	again, existed, err := store.Store(ctx, bytes.NewReader(content), file.Checksum)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, file.Path, again.Path)

	ok, err := store.FileExists(ctx, file.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.GetFile(ctx, file.Key)
	require.NoError(t, err)
	defer rc.Close()
	read, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, read)
}

func TestFileStore_ChecksumMismatch(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, testLogger())
	require.NoError(t, err)

	_, _, err = store.Store(context.Background(), bytes.NewReader([]byte("abc")), sum([]byte("abd")))
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))

	tmp, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp, "rejected uploads leave nothing behind")
}

func TestFileStore_GetFileMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.GetFile(context.Background(), sum([]byte("missing")))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	ok, err := store.FileExists(context.Background(), sum([]byte("missing")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttachmentStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewAttachmentStore(root, testLogger())
	require.NoError(t, err)

	pkgID := uuid.New()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	saved, err := store.Save(ctx, pkgID, "deed-scan", png)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pkgID.String(), "deed-scan"), saved.StorageKey)
	assert.Equal(t, int64(len(png)), saved.SizeBytes)
	assert.Equal(t, "image/png", saved.MimeType)
	assert.FileExists(t, filepath.Join(root, saved.StorageKey))

	_, err = store.Save(ctx, pkgID, "../escape", png)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	n, err := store.DeletePackage(ctx, pkgID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(root, pkgID.String()))

	n, err = store.DeletePackage(ctx, pkgID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
