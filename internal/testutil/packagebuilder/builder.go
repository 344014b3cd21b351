// Package packagebuilder writes offline package files for tests.
package packagebuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/willow/pkg/integrity"
	"github.com/Ramsey-B/willow/pkg/packagefile"
)

type attachment struct {
	id       string
	fileName string
	mimeType string
	data     []byte
}

// Builder accumulates tables and manifest values, then writes a package.
type Builder struct {
	PackageID  uuid.UUID
	tables     map[string][]map[string]any
	order      []string
	manifest   map[string]string
	vocab      map[string]string
	attach     []attachment
	signingKey string
	checksum   string
	noManifest bool
}

// New returns a builder with a valid default manifest.
func New(packageID uuid.UUID) *Builder {
	return &Builder{
		PackageID: packageID,
		tables:    map[string][]map[string]any{},
		manifest: map[string]string{
			"package_id":     packageID.String(),
			"schema_version": "1.0",
			"created_at_utc": time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"device_id":      "tablet-01",
			"exported_by":    "field.officer",
			"app_version":    "2.3.0",
		},
		vocab: map[string]string{},
	}
}

// Row appends a row to table. Values may be string, int, int64, float64,
// bool, []byte, time.Time, uuid.UUID, *uuid.UUID or nil.
func (b *Builder) Row(table string, row map[string]any) *Builder {
	if _, ok := b.tables[table]; !ok {
		b.order = append(b.order, table)
	}
	b.tables[table] = append(b.tables[table], row)
	return b
}

func (b *Builder) Attachment(id, fileName, mimeType string, data []byte) *Builder {
	b.attach = append(b.attach, attachment{id: id, fileName: fileName, mimeType: mimeType, data: data})
	return b
}

func (b *Builder) Vocabulary(versions map[string]string) *Builder {
	for k, v := range versions {
		b.vocab[k] = v
	}
	return b
}

// Manifest overrides a manifest value. An empty value removes the key.
func (b *Builder) Manifest(key, value string) *Builder {
	if value == "" {
		delete(b.manifest, key)
		return b
	}
	b.manifest[key] = value
	return b
}

// WithoutManifest omits the manifest table entirely.
func (b *Builder) WithoutManifest() *Builder {
	b.noManifest = true
	return b
}

// Sign signs the computed checksum with key.
func (b *Builder) Sign(key string) *Builder {
	b.signingKey = key
	return b
}

// Checksum forces the manifest checksum instead of the computed one.
func (b *Builder) Checksum(checksum string) *Builder {
	b.checksum = checksum
	return b
}

// WriteTemp writes the package into dir and returns its path.
func (b *Builder) WriteTemp(ctx context.Context, dir string) (string, error) {
	path := filepath.Join(dir, b.PackageID.String()+".uhc")
	if err := b.Write(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// Write creates the package file at path. Data tables are written first, the
// content checksum is computed from them, then the manifest is added.
func (b *Builder) Write(ctx context.Context, path string) error {
	_ = os.Remove(path)

	db, err := sqlx.Open(packagefile.DriverName, path)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, table := range b.order {
		if err := writeTable(ctx, db, table, b.tables[table]); err != nil {
			return err
		}
	}
	if len(b.attach) > 0 {
		if _, err := db.ExecContext(ctx, `CREATE TABLE attachments (id TEXT, file_name TEXT, mime_type TEXT, data BLOB)`); err != nil {
			return err
		}
		for _, a := range b.attach {
			if _, err := db.ExecContext(ctx, `INSERT INTO attachments VALUES (?, ?, ?, ?)`, a.id, a.fileName, a.mimeType, a.data); err != nil {
				return err
			}
		}
	}
	if b.noManifest {
		return nil
	}

	checksum := b.checksum
	if checksum == "" {
		checksum, err = contentChecksum(ctx, path)
		if err != nil {
			return err
		}
	}

	values := map[string]string{"content_checksum": checksum}
	for k, v := range b.manifest {
		values[k] = v
	}
	if b.signingKey != "" {
		values["signature"] = integrity.Sign([]byte(b.signingKey), checksum)
	}
	vocab, err := json.Marshal(b.vocab)
	if err != nil {
		return err
	}
	values["vocabulary_versions"] = string(vocab)

	counts := map[string]int{}
	for table, rows := range b.tables {
		counts[table] = len(rows)
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	values["record_counts"] = string(raw)

	if _, err := db.ExecContext(ctx, `CREATE TABLE manifest (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := db.ExecContext(ctx, `INSERT INTO manifest (key, value) VALUES (?, ?)`, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func contentChecksum(ctx context.Context, path string) (string, error) {
	f, err := packagefile.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return integrity.ComputeContentChecksum(ctx, f)
}

func writeTable(ctx context.Context, db *sqlx.DB, table string, rows []map[string]any) error {
	types := map[string]string{}
	for _, row := range rows {
		for col, v := range row {
			if t := sqlType(v); t != "" {
				types[col] = t
			} else if _, ok := types[col]; !ok {
				types[col] = "TEXT"
			}
		}
	}
	cols := make([]string, 0, len(types))
	for col := range types {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = fmt.Sprintf("%q %s", col, types[col])
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	insert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(quoted, ", "), placeholders)

	for _, row := range rows {
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = sqlValue(row[col])
		}
		if _, err := db.ExecContext(ctx, insert, args...); err != nil {
			return err
		}
	}
	return nil
}

// sqlType is empty for NULL so a later non-NULL value decides the column.
func sqlType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case int, int64, bool:
		return "INTEGER"
	case float64:
		return "REAL"
	case []byte:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func sqlValue(v any) any {
	switch val := v.(type) {
	case uuid.UUID:
		return val.String()
	case *uuid.UUID:
		if val == nil {
			return nil
		}
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
