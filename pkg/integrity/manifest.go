package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagefile"
)

var (
	ErrManifestMissing   = errors.New("package has no manifest table")
	ErrManifestMalformed = errors.New("package manifest is malformed")
)

var validate = validator.New()

// ParseManifest reads and validates the manifest table.
func ParseManifest(ctx context.Context, f *packagefile.File) (*models.PackageManifest, error) {
	if !f.HasTable(packagefile.ManifestTable) {
		return nil, ErrManifestMissing
	}
	kv, err := f.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	return manifestFromValues(kv)
}

func manifestFromValues(kv map[string]string) (*models.PackageManifest, error) {
	m := &models.PackageManifest{
		SchemaVersion:      kv["schema_version"],
		DeviceID:           kv["device_id"],
		ExportedBy:         kv["exported_by"],
		AppVersion:         kv["app_version"],
		ContentChecksum:    strings.ToLower(strings.TrimSpace(kv["content_checksum"])),
		Signature:          kv["signature"],
		VocabularyVersions: map[string]string{},
		RecordCounts:       map[string]int{},
	}

	if raw := kv["package_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: package_id %q is not a GUID", ErrManifestMalformed, raw)
		}
		m.PackageID = id
	}
	if raw := kv["created_at_utc"]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at_utc %q is not RFC3339", ErrManifestMalformed, raw)
		}
		t = t.UTC()
		m.CreatedAtUtc = &t
	}
	if raw := kv["vocabulary_versions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.VocabularyVersions); err != nil {
			return nil, fmt.Errorf("%w: vocabulary_versions: %v", ErrManifestMalformed, err)
		}
	}
	if raw := kv["record_counts"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.RecordCounts); err != nil {
			return nil, fmt.Errorf("%w: record_counts: %v", ErrManifestMalformed, err)
		}
	}

	if m.PackageID == uuid.Nil {
		return nil, fmt.Errorf("%w: package_id is required", ErrManifestMalformed)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}
	return m, nil
}
