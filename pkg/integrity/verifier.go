package integrity

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/packagefile"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

var (
	ErrChecksumMismatch       = errors.New("content checksum mismatch")
	ErrSignatureInvalid       = errors.New("package signature is invalid")
	ErrVocabularyIncompatible = errors.New("package vocabulary is incompatible")
)

// VersionSource supplies the server-side vocabulary versions.
type VersionSource interface {
	Versions() map[string]string
}

type Config struct {
	RequireSignature bool
	SigningKey       string
}

// Report is the outcome of verifying one package. Failure is nil when the
// package may be staged.
type Report struct {
	Manifest        *models.PackageManifest        `json:"manifest,omitempty"`
	ContentChecksum string                         `json:"content_checksum"`
	Compatibility   models.VocabularyCompatibility `json:"compatibility"`
	Failure         error                          `json:"-"`
}

// Diagnostics renders the report for ImportPackage.Diagnostics.
func (r *Report) Diagnostics() map[string]any {
	d := map[string]any{
		"content_checksum": r.ContentChecksum,
		"vocabulary":       r.Compatibility,
	}
	if r.Manifest != nil {
		d["manifest_checksum"] = r.Manifest.ContentChecksum
		d["schema_version"] = r.Manifest.SchemaVersion
	}
	if r.Failure != nil {
		d["failure"] = r.Failure.Error()
	}
	return d
}

type Verifier struct {
	config   Config
	versions VersionSource
	logger   ectologger.Logger
}

func NewVerifier(config Config, versions VersionSource, logger ectologger.Logger) *Verifier {
	return &Verifier{
		config:   config,
		versions: versions,
		logger:   logger,
	}
}

// VerifyDigitalSignature checks signature against the content checksum.
// It always succeeds when signatures are not required.
func (v *Verifier) VerifyDigitalSignature(contentChecksum, signature string) error {
	if !v.config.RequireSignature {
		return nil
	}
	if v.config.SigningKey == "" {
		return fmt.Errorf("%w: no signing key configured", ErrSignatureInvalid)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: signature is missing or not hex", ErrSignatureInvalid)
	}
	want, _ := hex.DecodeString(Sign([]byte(v.config.SigningKey), contentChecksum))
	if !hmac.Equal(got, want) {
		return ErrSignatureInvalid
	}
	return nil
}

// Verify runs every integrity check. Integrity problems are returned in
// Report.Failure; the error return is reserved for I/O failures.
func (v *Verifier) Verify(ctx context.Context, f *packagefile.File) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "integrity.Verifier.Verify")
	defer span.End()

	report := &Report{}
	manifest, err := ParseManifest(ctx, f)
	if err != nil {
		report.Failure = err
		return report, nil
	}
	report.Manifest = manifest

	sum, err := ComputeContentChecksum(ctx, f)
	if err != nil {
		return nil, err
	}
	report.ContentChecksum = sum

	if !VerifyChecksum(manifest.ContentChecksum, sum) {
		report.Failure = fmt.Errorf("%w: manifest %s, computed %s", ErrChecksumMismatch, manifest.ContentChecksum, sum)
		return report, nil
	}
	if err := v.VerifyDigitalSignature(sum, manifest.Signature); err != nil {
		report.Failure = err
		return report, nil
	}

	report.Compatibility = CheckVocabularyCompatibility(manifest.VocabularyVersions, v.versions.Versions())
	if !report.Compatibility.IsCompatible {
		report.Failure = fmt.Errorf("%w: %s", ErrVocabularyIncompatible, strings.Join(report.Compatibility.Errors, "; "))
	}

	v.logger.WithContext(ctx).WithFields(map[string]any{
		"package_id":  manifest.PackageID,
		"checksum":    sum,
		"compatible":  report.Compatibility.IsCompatible,
		"vocab_warns": len(report.Compatibility.Warnings),
	}).Debug("Verified package integrity")
	return report, nil
}
