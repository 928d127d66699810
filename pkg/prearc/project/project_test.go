package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable([]Def{
		{ID: "ABC", Name: "Imaging Study ABC", ArchiveMode: ArchiveAuto, Aliases: []string{"abc-legacy"}},
		{ID: "XYZ", ArchiveMode: ArchiveManual, Members: []string{"alice"}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestTableResolve(t *testing.T) {
	table := testTable(t)

	tests := []struct {
		name   string
		caller string
		key    string
		wantID string
		wantOK bool
	}{
		{name: "by id", caller: "bob", key: "ABC", wantID: "ABC", wantOK: true},
		{name: "case insensitive", caller: "bob", key: "abc", wantID: "ABC", wantOK: true},
		{name: "by alias", caller: "bob", key: "ABC-Legacy", wantID: "ABC", wantOK: true},
		{name: "unknown key", caller: "bob", key: "NOPE", wantOK: false},
		{name: "member allowed", caller: "alice", key: "XYZ", wantID: "XYZ", wantOK: true},
		{name: "non-member denied", caller: "bob", key: "XYZ", wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := table.ResolveAccessibleProject(tc.caller, tc.key)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && p.ID != tc.wantID {
				t.Errorf("project = %q, want %q", p.ID, tc.wantID)
			}
		})
	}
}

func TestNewTableRejectsBadDefs(t *testing.T) {
	tests := []struct {
		name string
		defs []Def
	}{
		{name: "missing id", defs: []Def{{Name: "no id"}}},
		{name: "bad archive mode", defs: []Def{{ID: "A", ArchiveMode: "sometimes"}}},
		{name: "duplicate key", defs: []Def{{ID: "A"}, {ID: "B", Aliases: []string{"a"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTable(tc.defs); !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("NewTable error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	doc := `projects:
  - id: ABC
    archive_mode: auto
    aliases: [legacy-abc]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	p, ok := table.ResolveAccessibleProject("anyone", "legacy-abc")
	if !ok || p.ID != "ABC" || p.ArchiveMode != ArchiveAuto {
		t.Errorf("resolved %+v, ok=%v", p, ok)
	}
}

func TestResolve(t *testing.T) {
	table := testTable(t)

	t.Run("alias hit skips lookup", func(t *testing.T) {
		called := false
		p := Resolve(table, "bob", "abc", func() (*Project, error) {
			called = true
			return nil, nil
		})
		if p == nil || p.ID != "ABC" {
			t.Fatalf("project = %+v", p)
		}
		if called {
			t.Error("fallback lookup ran despite cache hit")
		}
	})

	t.Run("alias miss falls through to lookup", func(t *testing.T) {
		p := Resolve(table, "bob", "NOPE", func() (*Project, error) {
			return &Project{ID: "FROMID"}, nil
		})
		if p == nil || p.ID != "FROMID" {
			t.Errorf("project = %+v", p)
		}
	})

	t.Run("lookup error degrades to unassigned", func(t *testing.T) {
		p := Resolve(table, "bob", "", func() (*Project, error) {
			return nil, errors.New("backend down")
		})
		if p != nil {
			t.Errorf("project = %+v, want nil", p)
		}
	})

	t.Run("no alias no lookup", func(t *testing.T) {
		if p := Resolve(table, "bob", "", nil); p != nil {
			t.Errorf("project = %+v, want nil", p)
		}
	})
}
