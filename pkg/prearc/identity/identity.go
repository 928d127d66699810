// Package identity derives (project, subject, session) routing triples from
// raw patient identity strings and folds them into the object header as a
// comment annotation.
package identity

import (
	"fmt"
	"strings"

	"github.com/vuiis/prearc/pkg/prearc/dicomio"
)

const (
	UnknownProject = "UnknownProject"
	UnknownSubject = "UnknownSubject"
)

// Triple is the routing identity derived from a raw identity string.
type Triple struct {
	Project string
	Subject string
	Session string
}

// Derive interprets a raw identity string, typically the PatientName field.
//
// A caret separates an instrument-style prefix from a subject/session
// compound: the prefix is the project, the remainder splits on the first
// underscore into session then subject. Without a caret, the first
// underscore splits project from subject, with UnknownProject and
// UnknownSubject filling the empty sides.
func Derive(raw string) Triple {
	if i := strings.IndexByte(raw, '^'); i >= 0 {
		project := strings.ToUpper(raw[:i])
		rest := raw[i+1:]
		if j := strings.IndexByte(rest, '_'); j >= 0 {
			return Triple{Project: project, Session: rest[:j], Subject: rest[j+1:]}
		}
		return Triple{Project: project, Subject: rest, Session: rest}
	}

	uindex := strings.IndexByte(raw, '_')
	switch {
	case uindex == -1:
		return Triple{Project: UnknownProject, Subject: raw, Session: raw}
	case uindex == 0:
		rest := raw[1:]
		return Triple{Project: UnknownProject, Subject: rest, Session: rest}
	case uindex >= len(raw)-1:
		return Triple{
			Project: strings.ToUpper(raw[:uindex]),
			Subject: UnknownSubject,
			Session: UnknownSubject,
		}
	default:
		rest := raw[uindex+1:]
		return Triple{Project: strings.ToUpper(raw[:uindex]), Subject: rest, Session: rest}
	}
}

// Comment renders the triple in the annotation form consumed downstream.
func (t Triple) Comment() string {
	return fmt.Sprintf("Project:%s; Subject:%s; Session:%s", t.Project, t.Subject, t.Session)
}

// Apply interprets the PatientName of hdr and writes the derived triple back
// into PatientComments so later stages assign the object to the right
// project. A pre-existing non-blank comment is a manual or upstream routing
// hint and is never overwritten, which also makes Apply idempotent.
func Apply(hdr *dicomio.Header) {
	if strings.TrimSpace(hdr.GetString(dicomio.TagPatientComments)) != "" {
		return
	}
	hdr.SetString(dicomio.TagPatientComments, Derive(hdr.GetString(dicomio.TagPatientName)).Comment())
}

// FromComment parses a triple back out of an annotation written by Apply.
// Returns ok=false when the comment does not carry the expected form.
func FromComment(comment string) (Triple, bool) {
	var t Triple
	for _, part := range strings.Split(comment, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			continue
		}
		switch key {
		case "Project":
			t.Project = value
		case "Subject":
			t.Subject = value
		case "Session":
			t.Session = value
		}
	}
	if t.Project == "" && t.Subject == "" && t.Session == "" {
		return Triple{}, false
	}
	return t, true
}
