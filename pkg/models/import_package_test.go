package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func packageIn(status PackageStatus) *ImportPackage {
	p := NewImportPackage(uuid.New(), "export.uhc", "field-1", testNow)
	p.Status = status
	return p
}

func TestPackageStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PackageStatus
		to   PackageStatus
		ok   bool
	}{
		{PackageStatusUploading, PackageStatusValidating, true},
		{PackageStatusUploading, PackageStatusQuarantined, true},
		{PackageStatusUploading, PackageStatusStaging, false},
		{PackageStatusValidating, PackageStatusValidationFailed, true},
		{PackageStatusValidating, PackageStatusReadyToCommit, false},
		{PackageStatusValidationFailed, PackageStatusValidating, true},
		{PackageStatusValidationFailed, PackageStatusCommitting, false},
		{PackageStatusStaging, PackageStatusReviewingConflicts, true},
		{PackageStatusStaging, PackageStatusCommitting, false},
		{PackageStatusReviewingConflicts, PackageStatusReadyToCommit, true},
		{PackageStatusReviewingConflicts, PackageStatusCommitting, false},
		{PackageStatusReadyToCommit, PackageStatusCommitting, true},
		{PackageStatusCommitting, PackageStatusCommitted, true},
		{PackageStatusCommitting, PackageStatusCancelled, false},
		{PackageStatusFailed, PackageStatusValidating, true},
		{PackageStatusFailed, PackageStatusStaging, false},
		{PackageStatusCommitted, PackageStatusValidating, false},
		{PackageStatusQuarantined, PackageStatusValidating, false},
		{PackageStatusCancelled, PackageStatusValidating, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))

			p := packageIn(tt.from)
			err := p.TransitionTo(tt.to, "operator-1", testNow)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, p.Status)
				assert.Equal(t, "operator-1", p.LastModifiedBy)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.from, p.Status)
			}
		})
	}
}

func TestPackageStatus_IsTerminal(t *testing.T) {
	for _, s := range []PackageStatus{PackageStatusCommitted, PackageStatusQuarantined, PackageStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []PackageStatus{PackageStatusUploading, PackageStatusFailed, PackageStatusValidationFailed, PackageStatusReadyToCommit} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestImportPackage_AddValidationResults(t *testing.T) {
	t.Run("errors park the package", func(t *testing.T) {
		p := packageIn(PackageStatusValidating)
		err := p.AddValidationResults([]string{"Building b1: administrative_code is required"}, nil, 1, 0, "operator-1", testNow)
		require.NoError(t, err)

		assert.Equal(t, PackageStatusValidationFailed, p.Status)
		assert.Equal(t, 1, p.ValidationErrorCount)
		assert.Equal(t, []string{}, p.ValidationWarnings.GetValue())
		require.NotNil(t, p.ValidatedAtUtc)
	})

	t.Run("warnings only proceed to staging", func(t *testing.T) {
		p := packageIn(PackageStatusValidating)
		err := p.AddValidationResults(nil, []string{"Person p1: phone looks short"}, 0, 1, "operator-1", testNow)
		require.NoError(t, err)

		assert.Equal(t, PackageStatusStaging, p.Status)
		assert.Equal(t, 1, p.ValidationWarningCount)
		assert.Equal(t, []string{}, p.ValidationErrors.GetValue())
	})

	t.Run("retry from ValidationFailed", func(t *testing.T) {
		p := packageIn(PackageStatusValidating)
		require.NoError(t, p.AddValidationResults([]string{"broken"}, nil, 1, 0, "operator-1", testNow))
		require.True(t, p.IsStageable())

		require.NoError(t, p.BeginValidation("operator-1", testNow))
		assert.Equal(t, PackageStatusValidating, p.Status)
		assert.Equal(t, 1, p.RetryCount)

		require.NoError(t, p.AddValidationResults(nil, nil, 0, 0, "operator-1", testNow))
		assert.Equal(t, PackageStatusStaging, p.Status)
		assert.Zero(t, p.ValidationErrorCount)
	})

	t.Run("not validating", func(t *testing.T) {
		p := packageIn(PackageStatusUploading)
		err := p.AddValidationResults(nil, nil, 0, 0, "operator-1", testNow)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})
}

func TestImportPackage_BeginValidation(t *testing.T) {
	p := packageIn(PackageStatusUploading)
	require.NoError(t, p.BeginValidation("operator-1", testNow))
	assert.Zero(t, p.RetryCount)

	p = packageIn(PackageStatusFailed)
	p.ErrorMessage = "staging failed"
	require.NoError(t, p.BeginValidation("operator-1", testNow))
	assert.Equal(t, 1, p.RetryCount)
	assert.Empty(t, p.ErrorMessage)

	p = packageIn(PackageStatusQuarantined)
	assert.False(t, p.IsStageable())
	assert.Error(t, p.BeginValidation("operator-1", testNow))
}

func TestImportPackage_SetConflictResults(t *testing.T) {
	tests := []struct {
		name       string
		from       PackageStatus
		persons    int
		properties int
		want       PackageStatus
		wantErr    bool
	}{
		{name: "conflicts found", from: PackageStatusStaging, persons: 2, properties: 1, want: PackageStatusReviewingConflicts},
		{name: "clean", from: PackageStatusStaging, want: PackageStatusReadyToCommit},
		{name: "rerun while reviewing", from: PackageStatusReviewingConflicts, persons: 1, want: PackageStatusReviewingConflicts},
		{name: "rerun when ready finds more", from: PackageStatusReadyToCommit, properties: 1, want: PackageStatusReviewingConflicts},
		{name: "rerun when ready stays ready", from: PackageStatusReadyToCommit, want: PackageStatusReadyToCommit},
		{name: "not staged", from: PackageStatusUploading, persons: 1, want: PackageStatusUploading, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := packageIn(tt.from)
			err := p.SetConflictResults(tt.persons, tt.properties, "operator-1", testNow)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.want, p.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, tt.persons+tt.properties, p.ConflictCount)
			assert.Equal(t, tt.persons, p.DuplicatePersonCount)
			assert.Equal(t, tt.properties, p.DuplicatePropertyCount)
			require.NotNil(t, p.DetectedAtUtc)
		})
	}
}

func TestImportPackage_MarkConflictsResolved(t *testing.T) {
	p := packageIn(PackageStatusReviewingConflicts)
	require.NoError(t, p.MarkConflictsResolved("operator-1", testNow))
	assert.Equal(t, PackageStatusReadyToCommit, p.Status)

	p = packageIn(PackageStatusUploading)
	assert.True(t, errors.Is(p.MarkConflictsResolved("operator-1", testNow), ErrInvalidTransition))
}

func TestImportPackage_Failures(t *testing.T) {
	p := packageIn(PackageStatusValidating)
	require.NoError(t, p.MarkAsFailed("pipeline crashed", nil, "operator-1", testNow))
	assert.Equal(t, PackageStatusFailed, p.Status)
	assert.Equal(t, "pipeline crashed", p.ErrorMessage)
	assert.Equal(t, map[string]any{}, p.Diagnostics.GetValue())

	p = packageIn(PackageStatusUploading)
	require.NoError(t, p.Quarantine("checksum mismatch", map[string]any{"computed": "ab12"}, "operator-1", testNow))
	assert.Equal(t, PackageStatusQuarantined, p.Status)
	assert.Equal(t, "ab12", p.Diagnostics.GetValue()["computed"])
	assert.Error(t, p.Cancel("too late", "operator-1", testNow))
}

func TestImportPackage_Commit(t *testing.T) {
	p := packageIn(PackageStatusReadyToCommit)
	require.NoError(t, p.BeginCommit("operator-1", testNow))
	require.NoError(t, p.MarkCommitted(12, "operator-1", testNow))

	assert.Equal(t, PackageStatusCommitted, p.Status)
	assert.Equal(t, 12, p.CommittedRecordCount)
	assert.Equal(t, "operator-1", p.CommittedBy)
	assert.True(t, p.Status.IsTerminal())
}
