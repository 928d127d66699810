package dicomio

import "fmt"

// Tag identifies a DICOM attribute as a (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Compare orders tags the way they appear in a dataset: by group, then element.
func (t Tag) Compare(o Tag) int {
	switch {
	case t.Group != o.Group:
		if t.Group < o.Group {
			return -1
		}
		return 1
	case t.Element != o.Element:
		if t.Element < o.Element {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Next returns the tag immediately following t in dataset order.
func (t Tag) Next() Tag {
	if t.Element == 0xFFFF {
		return Tag{Group: t.Group + 1, Element: 0}
	}
	return Tag{Group: t.Group, Element: t.Element + 1}
}

// MaxTag returns the highest of the given tags.
func MaxTag(tags ...Tag) Tag {
	var max Tag
	for _, t := range tags {
		if t.Compare(max) > 0 {
			max = t
		}
	}
	return max
}

// File Meta Information tags (group 0002).
var (
	TagFileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	TagFileMetaInformationVersion     = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID              = Tag{0x0002, 0x0010}
	TagSourceApplicationEntityTitle   = Tag{0x0002, 0x0016}
)

// Dataset tags the import path cares about.
var (
	TagSpecificCharacterSet = Tag{0x0008, 0x0005}
	TagSOPClassUID          = Tag{0x0008, 0x0016}
	TagSOPInstanceUID       = Tag{0x0008, 0x0018}
	TagStudyDate            = Tag{0x0008, 0x0020}
	TagAccessionNumber      = Tag{0x0008, 0x0050}
	TagModality             = Tag{0x0008, 0x0060}
	TagStationName          = Tag{0x0008, 0x1010}
	TagSeriesDescription    = Tag{0x0008, 0x103E}
	TagPatientName          = Tag{0x0010, 0x0010}
	TagPatientID            = Tag{0x0010, 0x0020}
	TagPatientComments      = Tag{0x0010, 0x4000}
	TagStudyInstanceUID     = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID    = Tag{0x0020, 0x000E}
	TagStudyID              = Tag{0x0020, 0x0010}
	TagSeriesNumber         = Tag{0x0020, 0x0011}
	TagInstanceNumber       = Tag{0x0020, 0x0013}
	TagPixelData            = Tag{0x7FE0, 0x0010}
)

// Sequence item delimitation tags.
var (
	tagItem                 = Tag{0xFFFE, 0xE000}
	tagItemDelimitation     = Tag{0xFFFE, 0xE00D}
	tagSequenceDelimitation = Tag{0xFFFE, 0xE0DD}
)

// vrOf carries value representations for the tags this package reads or
// writes. Anything else parsed from an implicit VR stream is treated as UN.
var vrOf = map[Tag]string{
	TagFileMetaInformationVersion:   "OB",
	TagMediaStorageSOPClassUID:      "UI",
	TagMediaStorageSOPInstanceUID:   "UI",
	TagTransferSyntaxUID:            "UI",
	TagSourceApplicationEntityTitle: "AE",
	TagSpecificCharacterSet:         "CS",
	TagSOPClassUID:                  "UI",
	TagSOPInstanceUID:               "UI",
	TagStudyDate:                    "DA",
	TagAccessionNumber:              "SH",
	TagModality:                     "CS",
	TagStationName:                  "SH",
	TagSeriesDescription:            "LO",
	TagPatientName:                  "PN",
	TagPatientID:                    "LO",
	TagPatientComments:              "LT",
	TagStudyInstanceUID:             "UI",
	TagSeriesInstanceUID:            "UI",
	TagStudyID:                      "SH",
	TagSeriesNumber:                 "IS",
	TagInstanceNumber:               "IS",
}

func vrFor(t Tag) string {
	if vr, ok := vrOf[t]; ok {
		return vr
	}
	return "UN"
}

// Transfer Syntax UIDs, per DICOM Part 5 Section 8.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"

	JPEGBaseline8Bit   = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit  = "1.2.840.10008.1.2.4.51"
	JPEGLossless       = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1    = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless   = "1.2.840.10008.1.2.4.90"
	JPEG2000           = "1.2.840.10008.1.2.4.91"
	RLELossless        = "1.2.840.10008.1.2.5"
)
