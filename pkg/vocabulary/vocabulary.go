// Package vocabulary holds the server's controlled code lists and their
// versions.
package vocabulary

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogue []byte

type Domain struct {
	Version string   `yaml:"version"`
	Codes   []string `yaml:"codes"`
}

type catalogue struct {
	Domains map[string]Domain `yaml:"domains"`
}

// Registry answers code-validity and version questions. It is read-only
// after construction.
type Registry struct {
	domains map[string]Domain
	codes   map[string]map[string]bool
}

// Load parses a YAML catalogue.
func Load(r io.Reader) (*Registry, error) {
	var c catalogue
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "failed to parse vocabulary catalogue")
	}
	if len(c.Domains) == 0 {
		return nil, fmt.Errorf("vocabulary catalogue defines no domains")
	}

	reg := &Registry{domains: c.Domains, codes: map[string]map[string]bool{}}
	for name, d := range c.Domains {
		if d.Version == "" {
			return nil, fmt.Errorf("vocabulary %s has no version", name)
		}
		set := make(map[string]bool, len(d.Codes))
		for _, code := range d.Codes {
			set[normalize(code)] = true
		}
		reg.codes[name] = set
	}
	return reg, nil
}

// LoadFile loads the catalogue at path, or the built-in one when path is empty.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary catalogue %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in catalogue.
func Default() *Registry {
	reg, err := Load(strings.NewReader(string(defaultCatalogue)))
	if err != nil {
		panic(err)
	}
	return reg
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Versions maps every domain to its version.
func (r *Registry) Versions() map[string]string {
	out := make(map[string]string, len(r.domains))
	for name, d := range r.domains {
		out[name] = d.Version
	}
	return out
}

func (r *Registry) Has(domain string) bool {
	_, ok := r.domains[domain]
	return ok
}

// IsValid reports whether code belongs to domain. Matching ignores case and
// surrounding space.
func (r *Registry) IsValid(domain, code string) bool {
	return r.codes[domain][normalize(code)]
}

func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.domains))
	for name := range r.domains {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
