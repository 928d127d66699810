// Package dicomtest synthesizes small DICOM streams for tests: a Part 10
// file is a preamble, a "DICM" marker, an explicit VR little endian meta
// group with a computed group length, and a dataset.
package dicomtest

import (
	"bytes"
	"encoding/binary"
)

// Transfer syntaxes used by test fixtures.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	JPEGBaseline                   = "1.2.840.10008.1.2.4.50"

	// Stable fixture UIDs.
	MRImageStorage = "1.2.840.10008.5.1.4.1.1.4"
	InstanceUID    = "1.3.6.1.4.1.9590.100.1.2.100"
	StudyUID       = "1.3.6.1.4.1.9590.100.1.1.100"
	SeriesUID      = "1.3.6.1.4.1.9590.100.1.3.100"
)

func longVR(vr string) bool {
	switch vr {
	case "OB", "OD", "OF", "OL", "OW", "SQ", "UC", "UN", "UR", "UT":
		return true
	}
	return false
}

func pad(vr, value string) []byte {
	b := []byte(value)
	if len(b)%2 != 0 {
		if vr == "UI" {
			b = append(b, 0x00)
		} else {
			b = append(b, ' ')
		}
	}
	return b
}

// Explicit encodes one element in explicit VR little endian.
func Explicit(group, elem uint16, vr, value string) []byte {
	return explicitBytes(group, elem, vr, pad(vr, value))
}

func explicitBytes(group, elem uint16, vr string, value []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, group)
	binary.Write(&buf, binary.LittleEndian, elem)
	buf.WriteString(vr)
	if longVR(vr) {
		buf.Write([]byte{0, 0})
		binary.Write(&buf, binary.LittleEndian, uint32(len(value)))
	} else {
		binary.Write(&buf, binary.LittleEndian, uint16(len(value)))
	}
	buf.Write(value)
	return buf.Bytes()
}

// Implicit encodes one element in implicit VR little endian.
func Implicit(group, elem uint16, vr, value string) []byte {
	v := pad(vr, value)
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, group)
	binary.Write(&buf, binary.LittleEndian, elem)
	binary.Write(&buf, binary.LittleEndian, uint32(len(v)))
	buf.Write(v)
	return buf.Bytes()
}

// MetaGroup encodes the group 0002 elements, group length first.
func MetaGroup(ts, sopClass, sopInstance string) []byte {
	var body bytes.Buffer
	body.Write(explicitBytes(0x0002, 0x0001, "OB", []byte{0x00, 0x01}))
	body.Write(Explicit(0x0002, 0x0002, "UI", sopClass))
	body.Write(Explicit(0x0002, 0x0003, "UI", sopInstance))
	body.Write(Explicit(0x0002, 0x0010, "UI", ts))

	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(body.Len()))
	var buf bytes.Buffer
	buf.Write(explicitBytes(0x0002, 0x0000, "UL", lb[:]))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

// Part10 assembles a complete Part 10 stream around the given dataset
// fragments. The dataset encoding must match ts.
func Part10(ts, sopClass, sopInstance string, dataset ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 128))
	buf.WriteString("DICM")
	buf.Write(MetaGroup(ts, sopClass, sopInstance))
	for _, d := range dataset {
		buf.Write(d)
	}
	return buf.Bytes()
}

// Dataset concatenates element encodings.
func Dataset(elems ...[]byte) []byte {
	var buf bytes.Buffer
	for _, e := range elems {
		buf.Write(e)
	}
	return buf.Bytes()
}

// MRDataset is a typical explicit VR little endian MR dataset prefix carrying
// the attributes the import path routes on, plus a short pixel data payload.
func MRDataset(patientName string) []byte {
	return Dataset(
		Explicit(0x0008, 0x0016, "UI", MRImageStorage),
		Explicit(0x0008, 0x0018, "UI", InstanceUID),
		Explicit(0x0008, 0x0020, "DA", "20260301"),
		Explicit(0x0008, 0x0060, "CS", "MR"),
		Explicit(0x0008, 0x103E, "LO", "t1_mprage_sag"),
		Explicit(0x0010, 0x0010, "PN", patientName),
		Explicit(0x0020, 0x000D, "UI", StudyUID),
		Explicit(0x0020, 0x000E, "UI", SeriesUID),
		Explicit(0x0020, 0x0011, "IS", "4 "),
		Explicit(0x7FE0, 0x0010, "OW", "\x01\x02\x03\x04"),
	)
}

// MRFile is a complete Part 10 MR object for the given patient name.
func MRFile(patientName string) []byte {
	return Part10(ExplicitVRLittleEndian, MRImageStorage, InstanceUID, MRDataset(patientName))
}
