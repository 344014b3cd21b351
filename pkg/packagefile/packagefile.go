// Package packagefile reads offline packages. A package is a SQLite
// database with one table per record kind plus manifest and attachments
// tables.
package packagefile

import (
	"context"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/Ramsey-B/willow/pkg/tracing"
)

const (
	DriverName       = "sqlite"
	ManifestTable    = "manifest"
	AttachmentsTable = "attachments"
)

// File is an open package.
type File struct {
	db     *sqlx.DB
	path   string
	tables []string
}

// Open opens the package at path read-only and lists its tables.
func Open(ctx context.Context, path string) (*File, error) {
	ctx, span := tracing.StartSpan(ctx, "packagefile.Open")
	defer span.End()

	db, err := sqlx.Open(DriverName, fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open package %s", path)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "package %s is not a readable database", path)
	}

	var tables []string
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if err := db.SelectContext(ctx, &tables, query); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to list tables of package %s", path)
	}

	return &File{db: db, path: path, tables: tables}, nil
}

func (f *File) Close() error {
	return f.db.Close()
}

func (f *File) Path() string {
	return f.path
}

// Tables lists every table in name order.
func (f *File) Tables() []string {
	return slices.Clone(f.tables)
}

func (f *File) HasTable(name string) bool {
	_, found := slices.BinarySearch(f.tables, name)
	return found
}

// ReadRows returns every row of table in rowid order.
func (f *File) ReadRows(ctx context.Context, table string) ([]Row, error) {
	ctx, span := tracing.StartSpan(ctx, "packagefile.File.ReadRows")
	defer span.End()

	if !f.HasTable(table) {
		return nil, fmt.Errorf("package has no table %q", table)
	}

	rows, err := f.db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %q ORDER BY rowid`, table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read table %s", table)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, errors.Wrapf(err, "failed to scan row of %s", table)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read table %s", table)
	}
	return out, nil
}

// Columns returns the column names of table in declaration order.
func (f *File) Columns(ctx context.Context, table string) ([]string, error) {
	if !f.HasTable(table) {
		return nil, fmt.Errorf("package has no table %q", table)
	}
	rows, err := f.db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT 0`, table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read columns of %s", table)
	}
	defer rows.Close()
	return rows.Columns()
}

// Manifest returns the key/value pairs of the manifest table.
func (f *File) Manifest(ctx context.Context) (map[string]string, error) {
	rows, err := f.ReadRows(ctx, ManifestTable)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		key := row.Text("key")
		if key == "" {
			return nil, fmt.Errorf("manifest row without key")
		}
		out[key] = row.Text("value")
	}
	return out, nil
}

// Attachment is one blob carried in the attachments table.
type Attachment struct {
	ID       string
	FileName string
	MimeType string
	Data     []byte
}

// Attachments returns every attachment. A package without the table has none.
func (f *File) Attachments(ctx context.Context) ([]Attachment, error) {
	if !f.HasTable(AttachmentsTable) {
		return nil, nil
	}
	rows, err := f.ReadRows(ctx, AttachmentsTable)
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(rows))
	for _, row := range rows {
		out = append(out, Attachment{
			ID:       row.Text("id"),
			FileName: row.Text("file_name"),
			MimeType: row.Text("mime_type"),
			Data:     row.Bytes("data"),
		})
	}
	return out, nil
}
