package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and trims", "  John  SMITH ", "john smith"},
		{"folds diacritics", "José Núñez", "jose nunez"},
		{"drops punctuation", "O'Brien-Smith", "o brien smith"},
		{"unifies alef forms", "أحمد", "احمد"},
		{"unifies taa marbuta", "فاطمة", "فاطمه"},
		{"drops tatweel", "محـــمد", "محمد"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "0123", DigitsOnly("٠١٢٣"))
	assert.Equal(t, "5551234", DigitsOnly("(555) 123-4"))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12345", NormalizeCode(" ab-123 45 "))
	assert.Equal(t, "0102", NormalizeCode("٠١٠٢"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "963944123456", NormalizePhone("00963 944 123 456"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "abc", ApplyChain("  ABC ", "trim", "lowercase"))
	assert.Equal(t, "x", Apply("x", "missing"))

	fn, ok := Get("ncode")
	assert.True(t, ok)
	assert.Equal(t, "A1", fn("a-1"))
}
