package project

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Def is one project entry in a projects file.
type Def struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	ArchiveMode string   `yaml:"archive_mode"`
	Aliases     []string `yaml:"aliases"`

	// Members lists callers allowed to store into the project. Empty means
	// any caller.
	Members []string `yaml:"members"`
}

// Table is a Cache backed by a static project list. Lookup keys (IDs and
// aliases) are case-insensitive.
type Table struct {
	byKey map[string]*tableEntry
}

type tableEntry struct {
	project Project
	members map[string]struct{}
}

// NewTable builds a Table from project definitions.
func NewTable(defs []Def) (*Table, error) {
	t := &Table{byKey: make(map[string]*tableEntry)}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: project entry without id", internalerr.ErrInvalidConfig)
		}
		mode := d.ArchiveMode
		switch mode {
		case "", ArchiveManual, ArchiveAuto:
		default:
			return nil, fmt.Errorf("%w: project %s: unknown archive mode %q", internalerr.ErrInvalidConfig, d.ID, mode)
		}
		e := &tableEntry{project: Project{ID: d.ID, Name: d.Name, ArchiveMode: mode}}
		if len(d.Members) > 0 {
			e.members = make(map[string]struct{}, len(d.Members))
			for _, m := range d.Members {
				e.members[m] = struct{}{}
			}
		}
		for _, key := range append([]string{d.ID}, d.Aliases...) {
			k := strings.ToLower(key)
			if _, dup := t.byKey[k]; dup {
				return nil, fmt.Errorf("%w: duplicate project key %q", internalerr.ErrInvalidConfig, key)
			}
			t.byKey[k] = e
		}
	}
	return t, nil
}

// LoadTable reads a YAML projects file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Projects []Def `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewTable(file.Projects)
}

// ResolveAccessibleProject implements Cache.
func (t *Table) ResolveAccessibleProject(caller, aliasOrID string) (*Project, bool) {
	e, ok := t.byKey[strings.ToLower(aliasOrID)]
	if !ok {
		return nil, false
	}
	if e.members != nil {
		if _, member := e.members[caller]; !member {
			return nil, false
		}
	}
	p := e.project
	return &p, true
}
