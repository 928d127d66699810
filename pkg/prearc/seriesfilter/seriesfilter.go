// Package seriesfilter evaluates configured series import filters against
// partially read object headers. A filter is a set of glob patterns over one
// header field, applied site-wide or per project.
package seriesfilter

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/vuiis/prearc/pkg/prearc/dicomio"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Mode selects how pattern matches translate into inclusion.
type Mode string

const (
	// Whitelist includes an object only when some pattern matches.
	Whitelist Mode = "whitelist"
	// Blacklist includes an object only when no pattern matches.
	Blacklist Mode = "blacklist"
)

// Filter is one configured series import filter.
type Filter struct {
	Enabled  bool     `yaml:"enabled"`
	Mode     Mode     `yaml:"mode"`
	Field    string   `yaml:"field"`
	Patterns []string `yaml:"patterns"`

	// ProjectID is empty for the site-wide filter.
	ProjectID string `yaml:"-"`

	compiled []glob.Glob
}

// fieldTags maps configurable field names onto header tags.
var fieldTags = map[string]dicomio.Tag{
	"SeriesDescription": dicomio.TagSeriesDescription,
	"Modality":          dicomio.TagModality,
	"StationName":       dicomio.TagStationName,
}

// Compile validates the filter and prepares its patterns for matching.
func (f *Filter) Compile() error {
	if f.Mode == "" {
		f.Mode = Blacklist
	}
	if f.Mode != Whitelist && f.Mode != Blacklist {
		return fmt.Errorf("%w: unknown filter mode %q", internalerr.ErrInvalidConfig, f.Mode)
	}
	if f.Field == "" {
		f.Field = "SeriesDescription"
	}
	if _, ok := fieldTags[f.Field]; !ok {
		return fmt.Errorf("%w: unknown filter field %q", internalerr.ErrInvalidConfig, f.Field)
	}
	f.compiled = f.compiled[:0]
	for _, p := range f.Patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", internalerr.ErrInvalidConfig, p, err)
		}
		f.compiled = append(f.compiled, g)
	}
	return nil
}

// matches reports whether any pattern matches the filtered field of hdr.
// Matching is case-insensitive.
func (f *Filter) matches(hdr *dicomio.Header) bool {
	value := strings.ToLower(hdr.GetString(fieldTags[f.Field]))
	for _, g := range f.compiled {
		if g.Match(value) {
			return true
		}
	}
	return false
}

// ShouldInclude evaluates one filter handle against a header. A nil or
// disabled filter includes everything. The payload stream is never touched;
// only already-parsed header fields participate.
func ShouldInclude(f *Filter, hdr *dicomio.Header) bool {
	if f == nil || !f.Enabled {
		return true
	}
	matched := f.matches(hdr)
	if f.Mode == Whitelist {
		return matched
	}
	return !matched
}

// Source hands out configured filters. Both lookups return nil when no
// filter is configured for the scope.
type Source interface {
	SiteFilter() (*Filter, error)
	ProjectFilter(projectID string) (*Filter, error)
}

// None is a Source with no filters configured.
type None struct{}

func (None) SiteFilter() (*Filter, error)          { return nil, nil }
func (None) ProjectFilter(string) (*Filter, error) { return nil, nil }
