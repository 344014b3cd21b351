// Package normalizers provides field normalization functions used to build
// duplicate-detection keys.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("fold", Fold)
	Register("nname", NormalizeName)
	Register("nphone", NormalizePhone)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("ncode", NormalizeCode)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value
// unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Fold decomposes s and drops combining marks, so "José" and "Jose" (or a
// vowelled and an unvowelled Arabic spelling) compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// arabicLetterVariants maps letter forms that field staff type
// interchangeably onto one spelling.
var arabicLetterVariants = map[rune]rune{
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
	'ٱ': 'ا',
	'ى': 'ي',
	'ة': 'ه',
	'ؤ': 'و',
	'ئ': 'ي',
}

// NormalizeName normalizes a person's name for matching
// - Fold diacritics
// - Lowercase
// - Unify common Arabic letter variants
// - Collapse whitespace and drop punctuation
func NormalizeName(s string) string {
	s = strings.ToLower(Fold(s))

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if v, ok := arabicLetterVariants[r]; ok {
			r = v
		}
		switch {
		case r == 'ـ':
			// tatweel is decoration only
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizePhone keeps digits and drops a leading international 00 prefix.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	return strings.TrimPrefix(digits, "00")
}

// DigitsOnly keeps only digit characters. Arabic-Indic digits are mapped to
// ASCII.
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsDigit(r) {
			continue
		}
		switch {
		case r >= '٠' && r <= '٩':
			r = '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			r = '0' + (r - '۰')
		}
		result.WriteRune(r)
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeCode canonicalizes identifiers such as national IDs,
// administrative codes and building numbers: uppercase alphanumerics only.
func NormalizeCode(s string) string {
	var result strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= '٠' && r <= '٩':
			result.WriteRune('0' + (r - '٠'))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
		}
	}
	return result.String()
}
