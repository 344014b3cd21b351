package validation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

// Dataset is the staged content of one package as seen by every validator.
// Validators must treat it as read-only.
type Dataset struct {
	ImportPackageID uuid.UUID
	Records         map[models.EntityKind][]models.StagingRecord

	index map[models.EntityKind]map[uuid.UUID]models.StagingRecord
}

func NewDataset(importPackageID uuid.UUID, records map[models.EntityKind][]models.StagingRecord) *Dataset {
	ds := &Dataset{
		ImportPackageID: importPackageID,
		Records:         records,
		index:           map[models.EntityKind]map[uuid.UUID]models.StagingRecord{},
	}
	for kind, rows := range records {
		byID := make(map[uuid.UUID]models.StagingRecord, len(rows))
		for _, r := range rows {
			byID[r.Staging().OriginalEntityID] = r
		}
		ds.index[kind] = byID
	}
	return ds
}

// Lookup finds a staged row by kind and original entity ID.
func (d *Dataset) Lookup(kind models.EntityKind, originalID uuid.UUID) (models.StagingRecord, bool) {
	r, ok := d.index[kind][originalID]
	return r, ok
}

// Findings collects one validator's messages keyed by staging row ID.
type Findings struct {
	level    int
	name     string
	checked  int
	errors   map[uuid.UUID][]models.ValidationMessage
	warnings map[uuid.UUID][]models.ValidationMessage
}

func newFindings(level int, name string) *Findings {
	return &Findings{
		level:    level,
		name:     name,
		errors:   map[uuid.UUID][]models.ValidationMessage{},
		warnings: map[uuid.UUID][]models.ValidationMessage{},
	}
}

func (f *Findings) message(code, field, format string, args []any) models.ValidationMessage {
	return models.ValidationMessage{
		Level:     f.level,
		Validator: f.name,
		Code:      code,
		Field:     field,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Error records a blocking issue on r.
func (f *Findings) Error(r models.StagingRecord, code, field, format string, args ...any) {
	id := r.Staging().ID
	f.errors[id] = append(f.errors[id], f.message(code, field, format, args))
}

// Warn records a non-blocking issue on r.
func (f *Findings) Warn(r models.StagingRecord, code, field, format string, args ...any) {
	id := r.Staging().ID
	f.warnings[id] = append(f.warnings[id], f.message(code, field, format, args))
}

// Scan calls fn for every row of rows that is still part of the commit.
// Skipped rows were settled by a merge and are not re-validated.
func (f *Findings) Scan(rows []models.StagingRecord, fn func(r models.StagingRecord)) {
	for _, r := range rows {
		if r.Staging().IsSkipped() {
			continue
		}
		f.checked++
		fn(r)
	}
}

func (f *Findings) ErrorCount() int {
	return countMessages(f.errors)
}

func (f *Findings) WarningCount() int {
	return countMessages(f.warnings)
}

func countMessages(m map[uuid.UUID][]models.ValidationMessage) int {
	n := 0
	for _, msgs := range m {
		n += len(msgs)
	}
	return n
}
