package dicomio

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"
	"testing"

	"github.com/vuiis/prearc/internal/dicomtest"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

func TestParsePart10(t *testing.T) {
	obj, err := Parse(bytes.NewReader(dicomtest.MRFile("abc_Subj01")), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	hdr := obj.Header

	if !hdr.HasMeta() {
		t.Error("meta group not detected")
	}
	if hdr.TransferSyntax != ExplicitVRLittleEndian {
		t.Errorf("TransferSyntax = %q", hdr.TransferSyntax)
	}

	tests := []struct {
		tag  Tag
		want string
	}{
		{TagSOPClassUID, dicomtest.MRImageStorage},
		{TagSOPInstanceUID, dicomtest.InstanceUID},
		{TagStudyInstanceUID, dicomtest.StudyUID},
		{TagSeriesInstanceUID, dicomtest.SeriesUID},
		{TagPatientName, "abc_Subj01"},
		{TagSeriesDescription, "t1_mprage_sag"},
		{TagModality, "MR"},
		{TagSeriesNumber, "4"},
	}
	for _, tc := range tests {
		if got := hdr.GetString(tc.tag); got != tc.want {
			t.Errorf("GetString(%s) = %q, want %q", tc.tag, got, tc.want)
		}
	}

	// pixel data sits past the cutoff and must stay in the remainder
	if hdr.Has(TagPixelData) {
		t.Error("pixel data landed in the header")
	}
	rest, err := io.ReadAll(obj.Remainder())
	if err != nil {
		t.Fatal(err)
	}
	want := dicomtest.Explicit(0x7FE0, 0x0010, "OW", "\x01\x02\x03\x04")
	if !bytes.Equal(rest, want) {
		t.Errorf("remainder = %x, want %x", rest, want)
	}
}

func TestWriteToRoundTripsBytes(t *testing.T) {
	in := dicomtest.MRFile("abc_Subj01")
	obj, err := Parse(bytes.NewReader(in), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var out bytes.Buffer
	n, err := obj.WriteTo(&out)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(out.Len()) {
		t.Errorf("WriteTo returned %d, wrote %d", n, out.Len())
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Error("rewritten object differs from input")
	}
}

func TestSetStringThenWrite(t *testing.T) {
	obj, err := Parse(bytes.NewReader(dicomtest.MRFile("abc_Subj01")), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	obj.Header.SetString(TagPatientComments, "Project:ABC; Subject:Subj01; Session:Subj01")

	var out bytes.Buffer
	if _, err := obj.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	reread, err := Parse(bytes.NewReader(out.Bytes()), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if got := reread.Header.GetString(TagPatientComments); got != "Project:ABC; Subject:Subj01; Session:Subj01" {
		t.Errorf("PatientComments = %q", got)
	}
	// the insert must keep dataset order: patient name still readable
	if got := reread.Header.GetString(TagPatientName); got != "abc_Subj01" {
		t.Errorf("PatientName = %q", got)
	}
}

func TestParseBareImplicitDataset(t *testing.T) {
	data := dicomtest.Dataset(
		dicomtest.Implicit(0x0008, 0x0016, "UI", dicomtest.MRImageStorage),
		dicomtest.Implicit(0x0008, 0x0018, "UI", dicomtest.InstanceUID),
		dicomtest.Implicit(0x0010, 0x0010, "PN", "abc_Subj01"),
		dicomtest.Implicit(0x0020, 0x000D, "UI", dicomtest.StudyUID),
	)
	obj, err := Parse(bytes.NewReader(data), DefaultCutoff, ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if obj.Header.HasMeta() {
		t.Error("bare dataset reported a meta group")
	}
	if obj.Header.TransferSyntax != ImplicitVRLittleEndian {
		t.Errorf("TransferSyntax = %q", obj.Header.TransferSyntax)
	}
	if got := obj.Header.GetString(TagPatientName); got != "abc_Subj01" {
		t.Errorf("PatientName = %q", got)
	}
}

func TestParseSniffsExplicit(t *testing.T) {
	data := dicomtest.Dataset(
		dicomtest.Explicit(0x0008, 0x0016, "UI", dicomtest.MRImageStorage),
		dicomtest.Explicit(0x0008, 0x0018, "UI", dicomtest.InstanceUID),
	)
	obj, err := Parse(bytes.NewReader(data), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if obj.Header.TransferSyntax != ExplicitVRLittleEndian {
		t.Errorf("sniffed TransferSyntax = %q", obj.Header.TransferSyntax)
	}
	if got := obj.Header.GetString(TagSOPInstanceUID); got != dicomtest.InstanceUID {
		t.Errorf("SOPInstanceUID = %q", got)
	}
}

func TestParseRejectsBigEndian(t *testing.T) {
	in := dicomtest.Part10(ExplicitVRBigEndian, dicomtest.MRImageStorage, dicomtest.InstanceUID)
	_, err := Parse(bytes.NewReader(in), DefaultCutoff, "")
	if !errors.Is(err, internalerr.ErrUnsupportedTS) {
		t.Errorf("error = %v, want ErrUnsupportedTS", err)
	}
}

func TestParseDeflated(t *testing.T) {
	var deflated bytes.Buffer
	fw, err := flate.NewWriter(&deflated, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(dicomtest.MRDataset("abc_Subj01")); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}
	in := dicomtest.Part10(DeflatedExplicitVRLittleEndian,
		dicomtest.MRImageStorage, dicomtest.InstanceUID, deflated.Bytes())

	obj, err := Parse(bytes.NewReader(in), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if obj.Header.TransferSyntax != ExplicitVRLittleEndian {
		t.Errorf("TransferSyntax = %q, want normalized explicit", obj.Header.TransferSyntax)
	}
	if got := obj.Header.GetString(TagPatientName); got != "abc_Subj01" {
		t.Errorf("PatientName = %q", got)
	}

	// the rewritten object must be plain explicit VR, self-consistent
	var out bytes.Buffer
	if _, err := obj.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	reread, err := Parse(bytes.NewReader(out.Bytes()), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if reread.Header.TransferSyntax != ExplicitVRLittleEndian {
		t.Errorf("reread TransferSyntax = %q", reread.Header.TransferSyntax)
	}
}

func TestParsePreservesUndefinedLengthSequence(t *testing.T) {
	// (0008,1140) SQ, undefined length, one defined-length item, then the
	// sequence delimiter
	item := dicomtest.Explicit(0x0008, 0x1150, "UI", dicomtest.MRImageStorage)
	var seq bytes.Buffer
	seq.Write([]byte{0x08, 0x00, 0x40, 0x11, 'S', 'Q', 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF})
	seq.Write([]byte{0xFE, 0xFF, 0x00, 0xE0})
	seq.Write([]byte{byte(len(item)), 0x00, 0x00, 0x00})
	seq.Write(item)
	seq.Write([]byte{0xFE, 0xFF, 0xDD, 0xE0, 0x00, 0x00, 0x00, 0x00})

	in := dicomtest.Part10(ExplicitVRLittleEndian, dicomtest.MRImageStorage, dicomtest.InstanceUID,
		dicomtest.Explicit(0x0008, 0x0018, "UI", dicomtest.InstanceUID),
		seq.Bytes(),
		dicomtest.Explicit(0x0010, 0x0010, "PN", "abc_Subj01"),
	)

	obj, err := Parse(bytes.NewReader(in), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := obj.Header.GetString(TagPatientName); got != "abc_Subj01" {
		t.Errorf("PatientName after sequence = %q", got)
	}

	var out bytes.Buffer
	if _, err := obj.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Error("sequence bytes not preserved through rewrite")
	}
}

func TestEnsureMeta(t *testing.T) {
	data := dicomtest.Dataset(
		dicomtest.Explicit(0x0008, 0x0016, "UI", dicomtest.MRImageStorage),
		dicomtest.Explicit(0x0008, 0x0018, "UI", dicomtest.InstanceUID),
	)
	obj, err := Parse(bytes.NewReader(data), DefaultCutoff, ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	obj.EnsureMeta("SCANNER01")
	if !obj.Header.HasMeta() {
		t.Fatal("EnsureMeta did not synthesize a meta group")
	}

	var out bytes.Buffer
	if _, err := obj.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	reread, err := Parse(bytes.NewReader(out.Bytes()), DefaultCutoff, "")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reread.Header.HasMeta() {
		t.Error("rewritten object has no DICM marker")
	}
	if reread.Header.TransferSyntax != ExplicitVRLittleEndian {
		t.Errorf("TransferSyntax = %q", reread.Header.TransferSyntax)
	}
	if got := reread.Header.GetString(TagSOPInstanceUID); got != dicomtest.InstanceUID {
		t.Errorf("SOPInstanceUID = %q", got)
	}
}

func TestEnsureMetaKeepsExisting(t *testing.T) {
	in := dicomtest.MRFile("abc_Subj01")
	obj, err := Parse(bytes.NewReader(in), DefaultCutoff, "")
	if err != nil {
		t.Fatal(err)
	}
	obj.EnsureMeta("SCANNER01")

	var out bytes.Buffer
	if _, err := obj.WriteTo(&out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Error("EnsureMeta modified an object that already had meta")
	}
}

func TestTagOrdering(t *testing.T) {
	if DefaultCutoff.Compare(TagSeriesNumber) <= 0 {
		t.Error("cutoff does not cover SeriesNumber")
	}
	if DefaultCutoff.Compare(TagPixelData) >= 0 {
		t.Error("cutoff reaches into pixel data")
	}
	if got := (Tag{0x0010, 0xFFFF}).Next(); got != (Tag{0x0011, 0x0000}) {
		t.Errorf("Next rolled to %s", got)
	}
}
