// Package packagestore keeps uploaded packages on disk, addressed by the
// SHA-256 of their bytes, and extracted attachments per import package.
package packagestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/willow/pkg/tracing"
)

const packageExt = ".uhc"

// StoredFile describes a package held by the store.
type StoredFile struct {
	Key       string
	Path      string
	SizeBytes int64
	Checksum  string
}

type FileStore struct {
	root   string
	logger ectologger.Logger
}

// NewFileStore creates root when it does not exist.
func NewFileStore(root string, logger ectologger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o750); err != nil {
		return nil, errors.Wrapf(err, "failed to create package store at %s", root)
	}
	return &FileStore{root: root, logger: logger}, nil
}

// Path returns where the package with key lives.
func (s *FileStore) Path(key string) string {
	if len(key) < 4 {
		return filepath.Join(s.root, key+packageExt)
	}
	return filepath.Join(s.root, key[:2], key[2:4], key+packageExt)
}

// Store copies r into the store. expectedChecksum, when set, must match the
// SHA-256 of the bytes. alreadyExists reports a byte-identical re-upload.
func (s *FileStore) Store(ctx context.Context, r io.Reader, expectedChecksum string) (file StoredFile, alreadyExists bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "packagestore.FileStore.Store")
	defer span.End()

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "upload-*")
	if err != nil {
		return StoredFile{}, false, errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	closeErr := tmp.Close()
	if err != nil {
		return StoredFile{}, false, errors.Wrap(err, "failed to write package")
	}
	if closeErr != nil {
		return StoredFile{}, false, errors.Wrap(closeErr, "failed to flush package")
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if expectedChecksum != "" && !strings.EqualFold(sum, expectedChecksum) {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"expected": expectedChecksum,
			"actual":   sum,
		}).Warn("Uploaded package checksum mismatch")
		return StoredFile{}, false, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "file checksum mismatch: expected %s, got %s", expectedChecksum, sum)
	}

	file = StoredFile{Key: sum, Path: s.Path(sum), SizeBytes: size, Checksum: sum}
	if _, statErr := os.Stat(file.Path); statErr == nil {
		return file, true, nil
	}

	if err := os.MkdirAll(filepath.Dir(file.Path), 0o750); err != nil {
		return StoredFile{}, false, errors.Wrap(err, "failed to create package directory")
	}
	if err := os.Rename(tmp.Name(), file.Path); err != nil {
		return StoredFile{}, false, errors.Wrap(err, "failed to move package into place")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"key": sum, "size_bytes": size}).Info("Stored package")
	return file, false, nil
}

func (s *FileStore) FileExists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.Path(key))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrap(err, "failed to stat package")
	}
}

// GetFile opens the package for reading. The caller closes it.
func (s *FileStore) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "package file %s not found", key)
		}
		return nil, errors.Wrap(err, "failed to open package")
	}
	return f, nil
}
