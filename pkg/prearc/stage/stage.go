// Package stage persists incoming objects into a session's staging folder:
// collision-safe destination paths, per-destination locks, and the actual
// write with optional pixel-data normalization.
package stage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"
	blake2b "github.com/minio/blake2b-simd"

	"github.com/vuiis/prearc/pkg/prearc/codec"
	"github.com/vuiis/prearc/pkg/prearc/dicomio"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Stager computes destination paths and writes objects under a staging root.
type Stager struct {
	locks lockTable
}

// New creates a Stager with an empty lock table.
func New() *Stager {
	return &Stager{}
}

var validFilename = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// IsValidFilename reports whether name is a filesystem-safe token.
func IsValidFilename(name string) bool {
	return validFilename.MatchString(name)
}

// ToFileNameChars replaces anything outside the safe filename alphabet
// with underscores.
func ToFileNameChars(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// ToLabelChars replaces anything outside the label alphabet with
// underscores. Labels are stricter than filenames: no dots.
func ToLabelChars(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// imagePath lays a file out under the session folder, grouped by scan when
// one is known.
func imagePath(sessionDir, scan, name string) string {
	if scan == "" {
		return filepath.Join(sessionDir, "DICOM", name)
	}
	return filepath.Join(sessionDir, "SCANS", scan, "DICOM", name)
}

// synthesizeName builds a collision-safe filename from the object's SOP
// Instance UID.
func synthesizeName(hdr *dicomio.Header) string {
	name := ToFileNameChars(hdr.GetString(dicomio.TagSOPInstanceUID))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "object"
	}
	return name + ".dcm"
}

// Destination computes where the incoming object should land. The requested
// name is honored only when it is filesystem-safe and either unused or
// already occupied by the exact same SOP instance; everything else gets the
// synthesized identity-derived name so unrelated content is never clobbered.
func (s *Stager) Destination(sessionDir, scan, requestedName string, hdr *dicomio.Header, forceRename bool) string {
	safe := imagePath(sessionDir, scan, synthesizeName(hdr))
	if forceRename {
		return safe
	}
	requested := ToFileNameChars(requestedName)
	if !IsValidFilename(requested) {
		return safe
	}
	target := imagePath(sessionDir, scan, requested)
	if _, err := os.Stat(target); err != nil {
		return target
	}
	class, instance, err := readIdentity(target)
	if err != nil {
		return safe
	}
	if class == hdr.GetString(dicomio.TagSOPClassUID) && instance == hdr.GetString(dicomio.TagSOPInstanceUID) {
		// same instance resent; overwriting is fine
		return target
	}
	return safe
}

// readIdentity parses an already-staged file and returns its SOP class and
// instance UIDs.
func readIdentity(path string) (string, string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	p, err := dicom.NewParser(f, st.Size(), nil)
	if err != nil {
		return "", "", err
	}
	ds, err := p.Parse(dicom.ParseOptions{DropPixelData: true})
	if err != nil {
		return "", "", err
	}
	class, err := stringValue(ds, dicomtag.SOPClassUID)
	if err != nil {
		return "", "", err
	}
	instance, err := stringValue(ds, dicomtag.SOPInstanceUID)
	if err != nil {
		return "", "", err
	}
	return class, instance, nil
}

func stringValue(ds *dicom.DataSet, tag dicomtag.Tag) (string, error) {
	e, err := ds.FindElementByTag(tag)
	if err != nil {
		return "", err
	}
	if len(e.Value) != 1 {
		return "", fmt.Errorf("tag %s has %d values", tag, len(e.Value))
	}
	s, ok := e.Value[0].(string)
	if !ok {
		return "", fmt.Errorf("tag %s is not a string", tag)
	}
	return s, nil
}

// WriteResult describes a staged object.
type WriteResult struct {
	Path           string
	Digest         string
	TransferSyntax string
	Bytes          int64
	Decompressed   bool
}

// Write persists obj at dest under the destination lock for key. When the
// transfer syntax is encapsulated and a decompressor is available, the
// payload is normalized first; any decompression error degrades to storing
// the original encoding verbatim. The lock is released on every exit path.
func (s *Stager) Write(obj *dicomio.Object, key LockKey, dest, source string, dec codec.Decompressor) (WriteResult, error) {
	guard, err := s.locks.acquire(key)
	if err != nil {
		return WriteResult{}, err
	}
	defer guard.Release()

	res := WriteResult{Path: dest}

	if dec != nil && dec.NeedsDecompress(obj.Header.TransferSyntax) {
		// Buffer the remainder so a failed decompress can still write the
		// object untouched.
		raw, err := io.ReadAll(obj.Remainder())
		if err != nil {
			return res, internalerr.Server("reading object payload", err)
		}
		data, newTS, derr := dec.Decompress(obj.Header, bytes.NewReader(raw))
		if derr != nil {
			slog.Error("decompression failed, storing in original format",
				"transferSyntax", obj.Header.TransferSyntax, "error", derr)
			obj.SetRemainder(bytes.NewReader(raw))
		} else {
			obj.Header.SetTransferSyntax(newTS)
			obj.SetRemainder(bytes.NewReader(data))
			res.Decompressed = true
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, internalerr.Server("creating staging folder", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return res, internalerr.Server("creating staged file", err)
	}

	hash := blake2b.New256()
	n, werr := obj.WriteTo(io.MultiWriter(f, hash))
	cerr := f.Close()
	if werr != nil {
		return res, internalerr.Server("writing staged file", werr)
	}
	if cerr != nil {
		return res, internalerr.Server("closing staged file", cerr)
	}

	res.Bytes = n
	res.Digest = hex.EncodeToString(hash.Sum(nil))
	res.TransferSyntax = obj.Header.TransferSyntax

	// the receive log: one line per stored object
	slog.Info("received", "source", source, "file", dest, "digest", res.Digest)
	return res, nil
}
