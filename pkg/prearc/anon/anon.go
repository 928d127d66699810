// Package anon is the boundary to the anonymization service applied to
// staged objects.
package anon

import "context"

// Service anonymizes a staged file in place. Implementations live outside
// this module; the import path only decides when to call it and how to roll
// back when it fails.
type Service interface {
	// Enabled reports whether a site-wide anonymization script is active.
	Enabled() bool

	// Anonymize rewrites the file at path according to the site script.
	Anonymize(ctx context.Context, path, project, subject, label string, inPlace bool, configID int64, script string) error
}

type disabled struct{}

func (disabled) Enabled() bool { return false }

func (disabled) Anonymize(context.Context, string, string, string, string, bool, int64, string) error {
	return nil
}

// Disabled returns a Service with anonymization turned off.
func Disabled() Service { return disabled{} }
