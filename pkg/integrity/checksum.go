// Package integrity verifies an uploaded package before anything is staged:
// manifest structure, content checksum, signature and vocabulary versions.
package integrity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/Ramsey-B/willow/pkg/packagefile"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// ComputeContentChecksum hashes every data table of the package. The
// manifest and attachments tables are excluded so the manifest can carry
// the checksum itself. Tables are taken in name order, rows in rowid order,
// columns in name order as tab-joined key=value pairs.
func ComputeContentChecksum(ctx context.Context, f *packagefile.File) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "integrity.ComputeContentChecksum")
	defer span.End()

	hash := sha256.New()
	for _, table := range f.Tables() {
		if table == packagefile.ManifestTable || table == packagefile.AttachmentsTable {
			continue
		}
		rows, err := f.ReadRows(ctx, table)
		if err != nil {
			return "", err
		}

		hash.Write([]byte("[" + table + "]\n"))
		for _, row := range rows {
			hash.Write([]byte(canonicalRow(row)))
			hash.Write([]byte("\n"))
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func canonicalRow(row packagefile.Row) string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + "=" + packagefile.Canonical(row[col])
	}
	return strings.Join(parts, "\t")
}

// VerifyChecksum compares two hex digests case-insensitively.
func VerifyChecksum(expected, actual string) bool {
	return expected != "" && strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual))
}

// Sign returns the hex HMAC-SHA256 of contentChecksum under key.
func Sign(key []byte, contentChecksum string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strings.ToLower(contentChecksum)))
	return hex.EncodeToString(mac.Sum(nil))
}
