// Package curse registers debuff spells onto the routine's buff tree.
//
// Curses come from a catalog of YAML files. Each entry names a spell, the
// aura it leaves on the target, and optionally an expr condition and a Lua
// hook that replace the default eligibility rule.
package curse

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/totembot/internal/engine/target"
)

// ErrEmptyCatalog is returned when a catalog directory holds no entries.
var ErrEmptyCatalog = errors.New("curse: catalog has no entries")

// Entry is one catalog line.
type Entry struct {
	// Spell is the curse skill as it appears on the skill bar.
	Spell string `yaml:"spell"`
	// Aura is the debuff name (display or internal) the curse leaves behind.
	Aura string `yaml:"aura"`
	// Condition is an optional expr expression over Env.
	Condition string `yaml:"condition,omitempty"`
	// Hook is an optional Lua global called with the same facts as Env.
	Hook string `yaml:"hook,omitempty"`
	// Target is a target.ByName selector; empty means resolved.
	Target string `yaml:"target,omitempty"`
	// RefreshBelow recasts the curse once the aura has less than this left.
	// Zero casts only when the aura is absent.
	RefreshBelow time.Duration `yaml:"refresh_below,omitempty"`
}

// Catalog is an ordered list of entries. Earlier entries have priority.
type Catalog struct {
	Entries []Entry
}

type catalogFile struct {
	Curses []Entry `yaml:"curses"`
}

// ParseCatalog decodes one catalog document. Unknown keys are rejected.
func ParseCatalog(data []byte) ([]Entry, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.Curses, nil
}

// LoadCatalog reads every *.yaml file in dir in lexicographic order and
// concatenates their entries.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a validated, non-empty Catalog or an error.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading curse dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	cat := &Catalog{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		got, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		cat.Entries = append(cat.Entries, got...)
	}
	if len(cat.Entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCatalog, dir)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validating %q: %w", dir, err)
	}
	return cat, nil
}

// Validate checks every entry and reports all problems at once.
func (c *Catalog) Validate() error {
	var errs []error
	seen := make(map[string]int, len(c.Entries))
	for i, e := range c.Entries {
		if e.Spell == "" {
			errs = append(errs, fmt.Errorf("entry %d: spell must not be empty", i))
		}
		if e.Aura == "" {
			errs = append(errs, fmt.Errorf("entry %d (%s): aura must not be empty", i, e.Spell))
		}
		if _, err := target.ByName(e.Target); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, e.Spell, err))
		}
		if e.RefreshBelow < 0 {
			errs = append(errs, fmt.Errorf("entry %d (%s): refresh_below must not be negative", i, e.Spell))
		}
		if prev, ok := seen[e.Spell]; ok && e.Spell != "" {
			errs = append(errs, fmt.Errorf("entry %d: spell %q already listed at entry %d", i, e.Spell, prev))
		}
		seen[e.Spell] = i
	}
	return errors.Join(errs...)
}
