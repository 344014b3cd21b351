package packagestore

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/willow/pkg/tracing"
)

// SavedAttachment is the result of extracting one attachment blob.
type SavedAttachment struct {
	StorageKey string
	SizeBytes  int64
	MimeType   string
}

// AttachmentStore writes extracted attachments under
// <root>/<importPackageID>/<attachmentID>.
type AttachmentStore struct {
	root   string
	logger ectologger.Logger
}

func NewAttachmentStore(root string, logger ectologger.Logger) (*AttachmentStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrapf(err, "failed to create attachment store at %s", root)
	}
	return &AttachmentStore{root: root, logger: logger}, nil
}

func (s *AttachmentStore) Save(ctx context.Context, importPackageID uuid.UUID, attachmentID string, data []byte) (SavedAttachment, error) {
	ctx, span := tracing.StartSpan(ctx, "packagestore.AttachmentStore.Save")
	defer span.End()

	if attachmentID == "" || filepath.Base(attachmentID) != attachmentID {
		return SavedAttachment{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid attachment id %q", attachmentID)
	}

	dir := filepath.Join(s.root, importPackageID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return SavedAttachment{}, errors.Wrap(err, "failed to create attachment directory")
	}
	path := filepath.Join(dir, attachmentID)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return SavedAttachment{}, errors.Wrapf(err, "failed to write attachment %s", attachmentID)
	}

	return SavedAttachment{
		StorageKey: filepath.Join(importPackageID.String(), attachmentID),
		SizeBytes:  int64(len(data)),
		MimeType:   mimetype.Detect(data).String(),
	}, nil
}

// DeletePackage removes every attachment extracted for the package and
// returns how many files were deleted.
func (s *AttachmentStore) DeletePackage(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "packagestore.AttachmentStore.DeletePackage")
	defer span.End()

	dir := filepath.Join(s.root, importPackageID.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to list attachments")
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, errors.Wrap(err, "failed to delete attachments")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"import_package_id": importPackageID,
		"count":             len(entries),
	}).Debug("Deleted extracted attachments")
	return len(entries), nil
}
