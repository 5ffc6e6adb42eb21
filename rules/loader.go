package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds the loaded rulesets, keyed by use case. Rulesets are
// externally authored configuration; the engine treats them as read-only.
type Library struct {
	byUseCase map[UseCase]*Ruleset
}

// ForUseCase returns the ruleset for a use case, or an error when none is
// configured.
func (l *Library) ForUseCase(uc UseCase) (*Ruleset, error) {
	rs, ok := l.byUseCase[uc]
	if !ok {
		return nil, fmt.Errorf("no ruleset configured for use case %q", uc)
	}
	return rs, nil
}

// LoadFile parses a single YAML ruleset file and validates it.
func LoadFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}

	rs := &Ruleset{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("parse ruleset %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", path, err)
	}
	return rs, nil
}

// LoadDir loads every *.yaml / *.yml file in dir into a Library. Each use
// case may appear at most once.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read ruleset dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	lib := &Library{byUseCase: make(map[UseCase]*Ruleset)}
	for _, p := range paths {
		rs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if _, dup := lib.byUseCase[rs.UseCase]; dup {
			return nil, fmt.Errorf("duplicate ruleset for use case %q (%s)", rs.UseCase, p)
		}
		lib.byUseCase[rs.UseCase] = rs
	}
	return lib, nil
}

// NewLibrary builds a library from in-memory rulesets; used by tests and by
// callers that author rules programmatically.
func NewLibrary(sets ...*Ruleset) (*Library, error) {
	lib := &Library{byUseCase: make(map[UseCase]*Ruleset)}
	for _, rs := range sets {
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		if _, dup := lib.byUseCase[rs.UseCase]; dup {
			return nil, fmt.Errorf("duplicate ruleset for use case %q", rs.UseCase)
		}
		lib.byUseCase[rs.UseCase] = rs
	}
	return lib, nil
}
