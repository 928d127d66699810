// Package prearc implements the gradual DICOM import pipeline: one object
// per invocation is partially read, filtered, routed to a staging session,
// persisted under a per-destination lock, and optionally anonymized.
package prearc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vuiis/prearc/pkg/prearc/anon"
	"github.com/vuiis/prearc/pkg/prearc/codec"
	"github.com/vuiis/prearc/pkg/prearc/dicomio"
	"github.com/vuiis/prearc/pkg/prearc/identity"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
	"github.com/vuiis/prearc/pkg/prearc/project"
	"github.com/vuiis/prearc/pkg/prearc/seriesfilter"
	"github.com/vuiis/prearc/pkg/prearc/session"
	"github.com/vuiis/prearc/pkg/prearc/stage"
)

// defaultSessionLabel names sessions whose objects carry no usable label.
const defaultSessionLabel = "dicom_upload"

// Importer is the import pipeline facade. All collaborators are injected at
// construction; nothing is looked up ambiently at call time.
type Importer struct {
	sessions   session.Store
	projects   project.Cache
	filters    seriesfilter.Source
	anonymizer anon.Service
	codec      codec.Decompressor
	stager     *stage.Stager

	root         string
	siteURL      string
	anonScript   string
	anonConfigID int64
}

// Options configures an Importer.
type Options struct {
	Sessions session.Store
	Projects project.Cache
	Filters  seriesfilter.Source

	// Anonymizer defaults to anon.Disabled().
	Anonymizer anon.Service

	// Codec defaults to codec.Registry{}, which recognizes encapsulated
	// syntaxes but stores them unchanged.
	Codec codec.Decompressor

	// PrearchivePath is the staging root; project subfolders are created
	// beneath it.
	PrearchivePath string

	// SiteURL prefixes external URLs for staged objects.
	SiteURL string

	// AnonScript is the site-wide anonymization script body handed to the
	// Anonymizer, with its configuration row ID.
	AnonScript   string
	AnonConfigID int64
}

// New creates an Importer with the given dependencies.
func New(opts Options) *Importer {
	im := &Importer{
		sessions:     opts.Sessions,
		projects:     opts.Projects,
		filters:      opts.Filters,
		anonymizer:   opts.Anonymizer,
		codec:        opts.Codec,
		stager:       stage.New(),
		root:         opts.PrearchivePath,
		siteURL:      opts.SiteURL,
		anonScript:   opts.AnonScript,
		anonConfigID: opts.AnonConfigID,
	}
	if im.filters == nil {
		im.filters = seriesfilter.None{}
	}
	if im.anonymizer == nil {
		im.anonymizer = anon.Disabled()
	}
	if im.codec == nil {
		im.codec = codec.Registry{}
	}
	return im
}

// Request carries the recognized upload parameters for one object.
type Request struct {
	// Caller is the identity of the uploading user.
	Caller string

	// Name is the filename the object was sent as.
	Name string

	// Project is the destination project ID or alias. Empty means derive
	// from the object identity.
	Project string

	SessionLabel string
	Visit        string
	Subject      string

	// Source tags the staging session with where the upload came from.
	Source string

	// SenderID feeds the receive log; defaults to Caller.
	SenderID string

	// SenderAETitle is recorded in synthesized File Meta Information.
	SenderAETitle string

	// TransferSyntax overrides the dataset encoding for objects arriving
	// without File Meta Information.
	TransferSyntax string

	PreventAnon       bool
	PreventAutoCommit bool

	// Rename forces the identity-derived destination filename.
	Rename bool
}

// Result reports where one object landed. A filtered-out object yields an
// empty URL with Filtered set; this is success, not an error.
type Result struct {
	URL      string
	Filtered bool

	Path           string
	Digest         string
	Session        session.Data
	CreatedSession bool
}

// Import runs the pipeline for one object read from r.
func (im *Importer) Import(ctx context.Context, req Request, r io.Reader) (Result, error) {
	obj, err := dicomio.Parse(r, dicomio.DefaultCutoff, req.TransferSyntax)
	if err != nil {
		return Result{}, internalerr.Client(fmt.Sprintf("unable to read DICOM object %s", req.Name), err)
	}
	hdr := obj.Header

	identity.Apply(hdr)

	if hdr.GetString(dicomio.TagSOPClassUID) == "" {
		return Result{}, internalerr.Client(fmt.Sprintf("object %s contains no SOP Class UID", req.Name), internalerr.ErrMissingIdentity)
	}
	if hdr.GetString(dicomio.TagSOPInstanceUID) == "" {
		return Result{}, internalerr.Client(fmt.Sprintf("object %s contains no SOP Instance UID", req.Name), internalerr.ErrMissingIdentity)
	}

	// Project first: the project-scoped filter can't be found without it.
	proj := project.Resolve(im.projects, req.Caller, req.Project, im.identityLookup(req.Caller, hdr))
	projectID := ""
	if proj != nil {
		projectID = proj.ID
	}

	include, err := im.shouldInclude(projectID, hdr)
	if err != nil {
		return Result{}, err
	}
	if !include {
		// Rejected objects produce an empty success result. The caller sees
		// nothing; Filtered is the only breadcrumb.
		slog.Debug("object excluded by series import filter",
			"series", hdr.GetString(dicomio.TagSeriesDescription), "project", projectID)
		return Result{Filtered: true}, nil
	}

	triple, _ := identity.FromComment(hdr.GetString(dicomio.TagPatientComments))

	sessionLabel := req.SessionLabel
	if sessionLabel == "" {
		sessionLabel = stage.ToLabelChars(triple.Session)
	}
	if sessionLabel == "" || sessionLabel == "_" {
		sessionLabel = defaultSessionLabel
	}
	subject := req.Subject
	if subject == "" {
		subject = triple.Subject
	}

	studyTag := hdr.GetString(dicomio.TagStudyInstanceUID)
	root := im.root
	if projectID != "" {
		root = filepath.Join(im.root, projectID)
	}
	timestamp := session.MakeTimestamp()

	source := req.Source
	if source == "" {
		source = req.Caller
	}

	initial := session.Data{
		Project:           projectID,
		FolderName:        sessionLabel,
		Name:              sessionLabel,
		Timestamp:         timestamp,
		StudyTag:          studyTag,
		Modality:          hdr.GetString(dicomio.TagModality),
		Status:            session.StatusReceiving,
		Subject:           subject,
		Visit:             req.Visit,
		ScanDate:          hdr.GetString(dicomio.TagStudyDate),
		LastBuiltAt:       time.Now(),
		PreventAnon:       req.PreventAnon,
		PreventAutoCommit: req.PreventAutoCommit,
		Source:            source,
		URL:               filepath.Join(root, timestamp, sessionLabel),
		ArchiveMode:       archiveMode(proj, hdr),
	}

	getOrCreate, err := im.sessions.GetOrCreate(ctx, initial)
	if err != nil {
		return Result{}, internalerr.Server("resolving staging session", err)
	}
	sess := getOrCreate.Session

	// Non-critical telemetry; a failed refresh never fails the object.
	if err := im.sessions.TouchLastBuilt(ctx, sess); err != nil {
		slog.Error("failed to refresh session last-built timestamp", "error", err)
	}

	obj.EnsureMeta(req.SenderAETitle)

	sessionDir := filepath.Join(root, sess.Timestamp, sess.FolderName)
	dest := im.stager.Destination(sessionDir, scanLabel(hdr), req.Name, hdr, req.Rename)
	key := stage.LockKey{
		Project:    sess.Project,
		Timestamp:  sess.Timestamp,
		FolderName: sess.FolderName,
		File:       filepath.Base(dest),
	}

	sender := req.SenderID
	if sender == "" {
		sender = req.Caller
	}
	wres, err := im.stager.Write(obj, key, dest, sender, im.codec)
	if err != nil {
		return Result{}, err
	}

	if !sess.PreventAnon && im.anonymizer.Enabled() {
		if err := im.anonymizer.Anonymize(ctx, dest, sess.Project, sess.Subject, sess.FolderName, true, im.anonConfigID, im.anonScript); err != nil {
			return Result{}, im.rollback(ctx, getOrCreate, dest, err)
		}
	} else if sess.PreventAnon {
		slog.Debug("session was anonymized by the uploader, skipping site script",
			"project", sess.Project, "subject", sess.Subject, "session", sess.Name)
	}

	slog.Debug("stored object",
		"project", projectID, "study", studyTag,
		"instance", hdr.GetString(dicomio.TagSOPInstanceUID), "file", dest, "source", sender)

	return Result{
		URL:            im.externalURL(sess),
		Path:           wres.Path,
		Digest:         wres.Digest,
		Session:        sess,
		CreatedSession: getOrCreate.Created,
	}, nil
}

// rollback undoes the artifacts this call created after an anonymization
// failure: the written file always, the session row only when this call
// created it. A row reused from an earlier call stays for the retry.
func (im *Importer) rollback(ctx context.Context, res session.GetOrCreateResult, dest string, cause error) error {
	slog.Error("anonymization failed", "file", dest, "error", cause)
	if err := os.Remove(dest); err != nil {
		slog.Error("unable to delete staged file during rollback", "file", dest, "error", err)
		return internalerr.Server("rolling back staged file", err)
	}
	if res.Created {
		sess := res.Session
		if err := im.sessions.Delete(ctx, sess.FolderName, sess.Timestamp, sess.Project); err != nil {
			slog.Error("unable to delete staging session during rollback", "session", sess.FolderName, "error", err)
			return internalerr.Server("rolling back staging session", err)
		}
	}
	return internalerr.Server("anonymization failed", cause)
}

func (im *Importer) shouldInclude(projectID string, hdr *dicomio.Header) (bool, error) {
	site, err := im.filters.SiteFilter()
	if err != nil {
		return false, internalerr.Server("loading site series import filter", err)
	}
	var projFilter *seriesfilter.Filter
	if projectID != "" {
		projFilter, err = im.filters.ProjectFilter(projectID)
		if err != nil {
			return false, internalerr.Server("loading project series import filter", err)
		}
	}
	return seriesfilter.ShouldInclude(site, hdr) && seriesfilter.ShouldInclude(projFilter, hdr), nil
}

// identityLookup is the expensive fallback project lookup: derive the
// routing triple from the header and resolve its project through the cache.
func (im *Importer) identityLookup(caller string, hdr *dicomio.Header) project.LookupFunc {
	return func() (*project.Project, error) {
		triple, ok := identity.FromComment(hdr.GetString(dicomio.TagPatientComments))
		if !ok {
			triple = identity.Derive(hdr.GetString(dicomio.TagPatientName))
		}
		if triple.Project == "" || triple.Project == identity.UnknownProject {
			return nil, nil
		}
		if im.projects == nil {
			return nil, nil
		}
		if p, ok := im.projects.ResolveAccessibleProject(caller, triple.Project); ok {
			return p, nil
		}
		return nil, nil
	}
}

// scanLabel derives the scan folder label: the series number when it is a
// safe token, else a label-safe rendering of the series UID, else none.
func scanLabel(hdr *dicomio.Header) string {
	seriesNum := hdr.GetString(dicomio.TagSeriesNumber)
	if stage.IsValidFilename(seriesNum) {
		return seriesNum
	}
	if seriesUID := hdr.GetString(dicomio.TagSeriesInstanceUID); seriesUID != "" {
		return stage.ToLabelChars(seriesUID)
	}
	return ""
}

// archiveMode decides auto-archive for a new session: a per-object request
// in the header wins, then the project's configured mode.
func archiveMode(proj *project.Project, hdr *dicomio.Header) string {
	if proj == nil {
		return ""
	}
	switch hdr.GetString(dicomio.TagStudyID) {
	case "AUTOARCHIVE":
		return project.ArchiveAuto
	case "NOAUTOARCHIVE":
		return project.ArchiveManual
	}
	return proj.ArchiveMode
}

// externalURL is the location handle returned to the caller for a staged
// object.
func (im *Importer) externalURL(sess session.Data) string {
	proj := sess.Project
	if proj == "" {
		proj = "Unassigned"
	}
	return fmt.Sprintf("%s/data/prearchive/projects/%s/%s/%s", im.siteURL, proj, sess.Timestamp, sess.FolderName)
}
