package vocabulary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg := Default()

	assert.True(t, reg.Has("gender"))
	assert.True(t, reg.IsValid("gender", " Female "))
	assert.False(t, reg.IsValid("gender", "unknown"))
	assert.False(t, reg.IsValid("colour", "red"))

	versions := reg.Versions()
	assert.Equal(t, "2.0.0", versions["relation_type"])
	assert.Contains(t, reg.Domains(), "claim_type")
}

func TestLoad(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		reg, err := Load(strings.NewReader("domains:\n  colour:\n    version: 1.0.0\n    codes: [Red, blue]\n"))
		require.NoError(t, err)
		assert.True(t, reg.IsValid("colour", "red"))
		assert.Equal(t, []string{"colour"}, reg.Domains())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Load(strings.NewReader("domains: {}\n"))
		assert.Error(t, err)
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := Load(strings.NewReader("domains:\n  colour:\n    codes: [red]\n"))
		assert.Error(t, err)
	})

	t.Run("not yaml", func(t *testing.T) {
		_, err := Load(strings.NewReader("domains: [\n"))
		assert.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	reg, err := LoadFile("")
	require.NoError(t, err)
	assert.True(t, reg.Has("gender"))

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("domains:\n  x:\n    version: 3.1.0\n    codes: [a]\n"), 0o600))
	reg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "3.1.0"}, reg.Versions())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
