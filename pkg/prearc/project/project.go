// Package project resolves the destination project for an incoming object.
package project

import (
	"log/slog"
)

// Archive modes a project can configure for newly staged sessions.
const (
	ArchiveManual = "manual"
	ArchiveAuto   = "auto"
)

// Project is the slice of project state the import path needs.
type Project struct {
	ID          string
	Name        string
	ArchiveMode string
}

// Cache resolves a project alias or ID to a project the caller may store
// into. The second return is false when the alias matches nothing accessible.
type Cache interface {
	ResolveAccessibleProject(caller, aliasOrID string) (*Project, bool)
}

// LookupFunc is the expensive identity-derived fallback lookup.
type LookupFunc func() (*Project, error)

// Resolve picks the destination project. An explicit alias is tried against
// the cache first; a miss falls through to the fallback lookup rather than
// failing. Fallback errors degrade to unassigned-project ingestion: the
// object is still accepted, it just lands without a project.
func Resolve(cache Cache, caller, alias string, lookup LookupFunc) *Project {
	if alias != "" && cache != nil {
		if p, ok := cache.ResolveAccessibleProject(caller, alias); ok {
			slog.Debug("resolved project from alias", "alias", alias, "project", p.ID)
			return p
		}
		slog.Info("requested project does not exist or is not accessible, trying object identity",
			"alias", alias, "caller", caller)
	}
	if lookup == nil {
		return nil
	}
	p, err := lookup()
	if err != nil {
		slog.Error("project lookup failed, storing unassigned", "error", err)
		return nil
	}
	return p
}
