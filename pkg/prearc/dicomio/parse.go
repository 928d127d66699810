package dicomio

import (
	"bufio"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Object is a partially read DICOM object: the parsed header prefix plus the
// unconsumed remainder of the stream. The remainder is carried untouched
// until the object is persisted.
type Object struct {
	Header *Header

	remainder io.Reader
}

// Remainder returns the unread portion of the object, starting at the first
// attribute past the parse cutoff.
func (o *Object) Remainder() io.Reader { return o.remainder }

// SetRemainder swaps the unread portion, e.g. for a decompressed or
// re-buffered payload.
func (o *Object) SetRemainder(r io.Reader) { o.remainder = r }

// DefaultCutoff is the first tag past every attribute the import path routes
// on. Parsing stops there so pixel data never lands in the header buffer.
var DefaultCutoff = MaxTag(
	TagSeriesDescription,
	TagPatientComments,
	TagStudyInstanceUID,
	TagSeriesInstanceUID,
	TagSeriesNumber,
).Next()

// valueLimit bounds a single header value. Anything larger in the routing
// prefix means a malformed stream.
const valueLimit = 1 << 26

// Parse reads the header prefix of a DICOM object from r, stopping at the
// first tag not below cutoff. tsOverride names the dataset transfer syntax
// for objects that arrive without File Meta Information (e.g. bare C-STORE
// datasets); it is ignored when the stream carries its own meta group.
func Parse(r io.Reader, cutoff Tag, tsOverride string) (*Object, error) {
	br := bufio.NewReader(r)
	h := &Header{}

	peek, _ := br.Peek(132)
	if len(peek) >= 132 && string(peek[128:132]) == "DICM" {
		if _, err := br.Discard(132); err != nil {
			return nil, err
		}
		if err := parseMeta(br, h); err != nil {
			return nil, fmt.Errorf("file meta: %w", err)
		}
	}

	ts := h.metaString(TagTransferSyntaxUID)
	if ts == "" {
		ts = tsOverride
	}

	var (
		dataset  = br
		explicit bool
	)
	switch ts {
	case ExplicitVRBigEndian:
		return nil, fmt.Errorf("%w: %s", internalerr.ErrUnsupportedTS, ts)
	case DeflatedExplicitVRLittleEndian:
		// The deflated dataset is explicit VR little endian once inflated.
		// Inflate here and record the normalized syntax so the rewritten
		// object is self-consistent.
		dataset = bufio.NewReader(flate.NewReader(br))
		ts = ExplicitVRLittleEndian
		h.setMetaString(TagTransferSyntaxUID, ts)
		explicit = true
	case ImplicitVRLittleEndian:
		explicit = false
	case ExplicitVRLittleEndian:
		explicit = true
	case "":
		explicit = sniffExplicit(dataset)
		if explicit {
			ts = ExplicitVRLittleEndian
		} else {
			ts = ImplicitVRLittleEndian
		}
	default:
		// Compressed syntaxes still encode the main dataset in explicit VR
		// little endian; only the pixel data fragments are encapsulated.
		explicit = true
	}
	h.TransferSyntax = ts

	for {
		hdr, err := dataset.Peek(4)
		if err != nil || len(hdr) < 4 {
			break
		}
		t := Tag{binary.LittleEndian.Uint16(hdr[0:2]), binary.LittleEndian.Uint16(hdr[2:4])}
		if t.Compare(cutoff) >= 0 {
			break
		}
		e, err := readElement(dataset, explicit)
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", t, err)
		}
		h.elems = append(h.elems, e)
	}

	return &Object{Header: h, remainder: dataset}, nil
}

// parseMeta consumes the group 0002 elements, which are always explicit VR
// little endian. The group length element is dropped; it is recomputed on
// write.
func parseMeta(br *bufio.Reader, h *Header) error {
	for {
		hdr, err := br.Peek(4)
		if err != nil || len(hdr) < 4 {
			return nil
		}
		if binary.LittleEndian.Uint16(hdr[0:2]) != 0x0002 {
			return nil
		}
		e, err := readElement(br, true)
		if err != nil {
			return err
		}
		if e.tag == TagFileMetaInformationGroupLength {
			continue
		}
		h.meta = append(h.meta, e)
	}
}

// sniffExplicit guesses the dataset encoding for streams that carry neither
// meta information nor a caller-supplied syntax: explicit VR puts two
// uppercase VR letters where implicit VR puts length bytes.
func sniffExplicit(br *bufio.Reader) bool {
	b, err := br.Peek(6)
	if err != nil || len(b) < 6 {
		return false
	}
	return isVRChar(b[4]) && isVRChar(b[5])
}

func isVRChar(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLongVR(vr string) bool {
	switch vr {
	case "OB", "OD", "OF", "OL", "OW", "SQ", "UC", "UN", "UR", "UT":
		return true
	}
	return false
}

func readElement(br *bufio.Reader, explicit bool) (element, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return element{}, err
	}
	e := element{tag: Tag{binary.LittleEndian.Uint16(hdr[0:2]), binary.LittleEndian.Uint16(hdr[2:4])}}

	var length uint32
	if explicit {
		e.vr = string(hdr[4:6])
		if isLongVR(e.vr) {
			var lb [4]byte
			if _, err := io.ReadFull(br, lb[:]); err != nil {
				return element{}, err
			}
			length = binary.LittleEndian.Uint32(lb[:])
		} else {
			length = uint32(binary.LittleEndian.Uint16(hdr[6:8]))
		}
	} else {
		e.vr = vrFor(e.tag)
		length = binary.LittleEndian.Uint32(hdr[4:8])
	}

	if length == 0xFFFFFFFF {
		e.undefLen = true
		value, err := scanUndefined(br, explicit)
		if err != nil {
			return element{}, err
		}
		e.value = value
		return e, nil
	}

	if length > valueLimit {
		return element{}, fmt.Errorf("value length %d exceeds header limit", length)
	}
	e.value = make([]byte, length)
	if _, err := io.ReadFull(br, e.value); err != nil {
		return element{}, err
	}
	return e, nil
}

// scanUndefined copies the raw content of an undefined-length element,
// including every nested item header and the trailing sequence delimiter.
// The bytes are preserved verbatim so the element can be rewritten exactly.
func scanUndefined(br *bufio.Reader, explicit bool) ([]byte, error) {
	var out []byte
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, err
		}
		out = append(out, hdr[:]...)
		t := Tag{binary.LittleEndian.Uint16(hdr[0:2]), binary.LittleEndian.Uint16(hdr[2:4])}
		length := binary.LittleEndian.Uint32(hdr[4:8])

		switch t {
		case tagSequenceDelimitation:
			return out, nil
		case tagItem:
			if length == 0xFFFFFFFF {
				item, err := scanItem(br, explicit)
				if err != nil {
					return nil, err
				}
				out = append(out, item...)
			} else {
				if length > valueLimit {
					return nil, fmt.Errorf("item length %d exceeds header limit", length)
				}
				item := make([]byte, length)
				if _, err := io.ReadFull(br, item); err != nil {
					return nil, err
				}
				out = append(out, item...)
			}
		default:
			return nil, fmt.Errorf("unexpected tag %s inside sequence", t)
		}
	}
}

// scanItem copies the elements of an undefined-length item through its item
// delimiter.
func scanItem(br *bufio.Reader, explicit bool) ([]byte, error) {
	var out []byte
	for {
		hdr, err := br.Peek(4)
		if err != nil || len(hdr) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		t := Tag{binary.LittleEndian.Uint16(hdr[0:2]), binary.LittleEndian.Uint16(hdr[2:4])}
		if t == tagItemDelimitation {
			var delim [8]byte
			if _, err := io.ReadFull(br, delim[:]); err != nil {
				return nil, err
			}
			return append(out, delim[:]...), nil
		}
		e, err := readElement(br, explicit)
		if err != nil {
			return nil, err
		}
		out = append(out, encodeElement(e, explicit)...)
	}
}
