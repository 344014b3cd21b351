package integrity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/testutil/packagebuilder"
	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/packagefile"
)

type staticVersions map[string]string

func (s staticVersions) Versions() map[string]string { return s }

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func samplePackage(id uuid.UUID) *packagebuilder.Builder {
	return packagebuilder.New(id).
		Row("buildings", map[string]any{"id": uuid.New(), "building_number": "B-1", "number_of_floors": 3}).
		Row("persons", map[string]any{"id": uuid.New(), "first_name": "Ali", "date_of_birth": nil}).
		Attachment("a1", "deed.pdf", "application/pdf", []byte("%PDF-1.4"))
}

func openPackage(t *testing.T, b *packagebuilder.Builder) *packagefile.File {
	t.Helper()
	path, err := b.WriteTemp(context.Background(), t.TempDir())
	require.NoError(t, err)
	f, err := packagefile.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestComputeContentChecksum(t *testing.T) {
	ctx := context.Background()
	f := openPackage(t, samplePackage(uuid.New()))

	t.Run("is deterministic", func(t *testing.T) {
		first, err := integrity.ComputeContentChecksum(ctx, f)
		require.NoError(t, err)
		second, err := integrity.ComputeContentChecksum(ctx, f)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("ignores the manifest", func(t *testing.T) {
		sum, err := integrity.ComputeContentChecksum(ctx, f)
		require.NoError(t, err)

		manifest, err := integrity.ParseManifest(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, sum, manifest.ContentChecksum)
	})

	t.Run("changes with the data", func(t *testing.T) {
		base, err := integrity.ComputeContentChecksum(ctx, f)
		require.NoError(t, err)

		other := openPackage(t, samplePackage(uuid.New()))
		changed, err := integrity.ComputeContentChecksum(ctx, other)
		require.NoError(t, err)
		assert.NotEqual(t, base, changed)
	})
}

func TestVerifyChecksum(t *testing.T) {
	assert.True(t, integrity.VerifyChecksum("ABCDEF", "abcdef"))
	assert.True(t, integrity.VerifyChecksum(" abc ", "abc"))
	assert.False(t, integrity.VerifyChecksum("", ""))
	assert.False(t, integrity.VerifyChecksum("abc", "abd"))
}

func TestParseManifest(t *testing.T) {
	ctx := context.Background()

	t.Run("reads every key", func(t *testing.T) {
		id := uuid.New()
		f := openPackage(t, samplePackage(id).Vocabulary(map[string]string{"gender": "1.0.0"}))

		m, err := integrity.ParseManifest(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, id, m.PackageID)
		assert.Equal(t, "1.0", m.SchemaVersion)
		assert.Equal(t, "tablet-01", m.DeviceID)
		assert.Equal(t, "1.0.0", m.VocabularyVersions["gender"])
		assert.Equal(t, 1, m.RecordCounts["buildings"])
		require.NotNil(t, m.CreatedAtUtc)
	})

	t.Run("missing manifest", func(t *testing.T) {
		f := openPackage(t, samplePackage(uuid.New()).WithoutManifest())
		_, err := integrity.ParseManifest(ctx, f)
		assert.ErrorIs(t, err, integrity.ErrManifestMissing)
	})

	t.Run("bad package id", func(t *testing.T) {
		f := openPackage(t, samplePackage(uuid.New()).Manifest("package_id", "not-a-guid"))
		_, err := integrity.ParseManifest(ctx, f)
		assert.ErrorIs(t, err, integrity.ErrManifestMalformed)
	})

	t.Run("missing checksum", func(t *testing.T) {
		f := openPackage(t, samplePackage(uuid.New()).Checksum("zz"))
		_, err := integrity.ParseManifest(ctx, f)
		assert.ErrorIs(t, err, integrity.ErrManifestMalformed)
	})
}

func TestCheckVocabularyCompatibility(t *testing.T) {
	server := map[string]string{"gender": "1.2.3", "claim_type": "2.0.0"}

	tests := []struct {
		name       string
		pkg        map[string]string
		compatible bool
		warnings   int
	}{
		{"identical", map[string]string{"gender": "1.2.3"}, true, 0},
		{"patch differs", map[string]string{"gender": "1.2.0"}, true, 0},
		{"minor differs", map[string]string{"gender": "1.1.9"}, true, 1},
		{"major differs", map[string]string{"claim_type": "1.4.0"}, false, 0},
		{"unknown domain", map[string]string{"colour": "1.0.0"}, true, 1},
		{"not semver", map[string]string{"gender": "latest"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := integrity.CheckVocabularyCompatibility(tt.pkg, server)
			assert.Equal(t, tt.compatible, result.IsCompatible)
			assert.Len(t, result.Warnings, tt.warnings)
			assert.Len(t, result.Domains, len(tt.pkg))
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	server := staticVersions{"gender": "1.0.0", "claim_type": "2.1.0"}

	t.Run("accepts a consistent package", func(t *testing.T) {
		v := integrity.NewVerifier(integrity.Config{}, server, silentLogger())
		f := openPackage(t, samplePackage(uuid.New()).Vocabulary(map[string]string{"gender": "1.0.4"}))

		report, err := v.Verify(ctx, f)
		require.NoError(t, err)
		assert.NoError(t, report.Failure)
		assert.True(t, report.Compatibility.IsCompatible)
	})

	t.Run("rejects a checksum mismatch", func(t *testing.T) {
		v := integrity.NewVerifier(integrity.Config{}, server, silentLogger())
		f := openPackage(t, samplePackage(uuid.New()).Checksum(strings.Repeat("a", 64)))

		report, err := v.Verify(ctx, f)
		require.NoError(t, err)
		assert.ErrorIs(t, report.Failure, integrity.ErrChecksumMismatch)
		assert.Contains(t, report.Diagnostics(), "failure")
	})

	t.Run("rejects a vocabulary major mismatch", func(t *testing.T) {
		v := integrity.NewVerifier(integrity.Config{}, server, silentLogger())
		f := openPackage(t, samplePackage(uuid.New()).Vocabulary(map[string]string{"claim_type": "1.9.0"}))

		report, err := v.Verify(ctx, f)
		require.NoError(t, err)
		assert.True(t, errors.Is(report.Failure, integrity.ErrVocabularyIncompatible))
		assert.False(t, report.Compatibility.IsCompatible)
	})

	t.Run("signature required", func(t *testing.T) {
		v := integrity.NewVerifier(integrity.Config{RequireSignature: true, SigningKey: "secret"}, server, silentLogger())

		signed := openPackage(t, samplePackage(uuid.New()).Sign("secret"))
		report, err := v.Verify(ctx, signed)
		require.NoError(t, err)
		assert.NoError(t, report.Failure)

		wrongKey := openPackage(t, samplePackage(uuid.New()).Sign("other"))
		report, err = v.Verify(ctx, wrongKey)
		require.NoError(t, err)
		assert.ErrorIs(t, report.Failure, integrity.ErrSignatureInvalid)

		unsigned := openPackage(t, samplePackage(uuid.New()))
		report, err = v.Verify(ctx, unsigned)
		require.NoError(t, err)
		assert.ErrorIs(t, report.Failure, integrity.ErrSignatureInvalid)
	})

	t.Run("signature not required", func(t *testing.T) {
		v := integrity.NewVerifier(integrity.Config{}, server, silentLogger())
		assert.NoError(t, v.VerifyDigitalSignature("abc", ""))
	})
}
