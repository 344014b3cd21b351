package packagefile_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/internal/testutil/packagebuilder"
	"github.com/Ramsey-B/willow/pkg/packagefile"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	buildingID := uuid.New()

	path, err := packagebuilder.New(uuid.New()).
		Row("persons", map[string]any{"id": uuid.New(), "first_name": "Ali"}).
		Row("buildings", map[string]any{"id": buildingID, "number_of_floors": 4, "latitude": 36.2}).
		Attachment("a1", "photo.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff}).
		WriteTemp(ctx, t.TempDir())
	require.NoError(t, err)

	f, err := packagefile.Open(ctx, path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"attachments", "buildings", "manifest", "persons"}, f.Tables())
	assert.True(t, f.HasTable("buildings"))
	assert.False(t, f.HasTable("claims"))

	rows, err := f.ReadRows(ctx, "buildings")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	id, err := rows[0].UUID("id")
	require.NoError(t, err)
	assert.Equal(t, buildingID, id)
	assert.Equal(t, 4, rows[0].Int("number_of_floors"))
	require.NotNil(t, rows[0].OptionalFloat("latitude"))
	assert.InDelta(t, 36.2, *rows[0].OptionalFloat("latitude"), 0.0001)

	manifest, err := f.Manifest(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, manifest["content_checksum"])

	attachments, err := f.Attachments(ctx)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, attachments[0].Data)

	_, err = f.ReadRows(ctx, "claims")
	assert.Error(t, err)
}

func TestOpen_NotADatabase(t *testing.T) {
	_, err := packagefile.Open(context.Background(), filepath.Join(t.TempDir(), "missing", "x.uhc"))
	assert.Error(t, err)
}

func TestRow(t *testing.T) {
	id := uuid.New()
	row := packagefile.Row{
		"id":      id.String(),
		"bad":     "nope",
		"empty":   "",
		"count":   int64(7),
		"ratio":   "0.25",
		"born":    "1980-03-04",
		"stamp":   "2024-01-02 10:11:12",
		"garbage": "yesterday",
		"null":    nil,
	}

	got, err := row.UUID("id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = row.UUID("bad")
	assert.Error(t, err)
	_, err = row.UUID("empty")
	assert.Error(t, err)

	opt, err := row.OptionalUUID("null")
	require.NoError(t, err)
	assert.Nil(t, opt)

	assert.Equal(t, int64(7), row.Int64("count"))
	assert.Equal(t, 0, row.Int("missing"))
	assert.Nil(t, row.OptionalInt("null"))
	assert.Equal(t, 0.25, *row.OptionalFloat("ratio"))

	assert.Equal(t, time.Date(1980, 3, 4, 0, 0, 0, 0, time.UTC), *row.Time("born"))
	assert.Equal(t, time.Date(2024, 1, 2, 10, 11, 12, 0, time.UTC), *row.Time("stamp"))
	assert.Nil(t, row.Time("garbage"))

	assert.False(t, row.Has("null"))
	assert.True(t, row.Has("count"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "\x00", packagefile.Canonical(nil))
	assert.Equal(t, "0aff", packagefile.Canonical([]byte{0x0a, 0xff}))
	assert.Equal(t, "42", packagefile.Canonical(int64(42)))
	assert.Equal(t, "1.5", packagefile.Canonical(1.5))
	assert.Equal(t, "1", packagefile.Canonical(true))
	assert.Equal(t, "text", packagefile.Canonical("text"))
}
