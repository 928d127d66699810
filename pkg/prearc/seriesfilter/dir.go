package seriesfilter

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Dir loads filters from a directory of YAML files: site.yaml for the
// site-wide filter and projects/<id>.yaml per project. A missing file means
// no filter is configured for that scope. Loaded filters are cached for the
// lifetime of the Dir.
type Dir struct {
	Root string

	mu    sync.Mutex
	cache map[string]*Filter
}

// NewDir creates a directory-backed filter source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root, cache: make(map[string]*Filter)}
}

// SiteFilter implements Source.
func (d *Dir) SiteFilter() (*Filter, error) {
	return d.load("site", filepath.Join(d.Root, "site.yaml"), "")
}

// ProjectFilter implements Source.
func (d *Dir) ProjectFilter(projectID string) (*Filter, error) {
	if projectID == "" {
		return nil, nil
	}
	return d.load("project:"+projectID, filepath.Join(d.Root, "projects", projectID+".yaml"), projectID)
}

func (d *Dir) load(key, path, projectID string) (*Filter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.cache[key]; ok {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		d.cache[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f := &Filter{ProjectID: projectID}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, err
	}
	if err := f.Compile(); err != nil {
		return nil, err
	}
	d.cache[key] = f
	return f, nil
}
