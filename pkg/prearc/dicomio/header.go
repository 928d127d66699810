package dicomio

import "strings"

// element is one parsed attribute. value holds the raw value bytes as they
// appeared on the wire; for undefined-length elements it also holds every
// nested item header through the trailing sequence delimiter.
type element struct {
	tag      Tag
	vr       string
	undefLen bool
	value    []byte
}

// Header holds the parsed prefix of a DICOM object: the File Meta group and
// every dataset attribute up to the parse cutoff. Payload bytes past the
// cutoff are never copied in here.
type Header struct {
	// TransferSyntax is the dataset encoding. Objects read from a deflated
	// stream are inflated during parsing and carry ExplicitVRLittleEndian.
	TransferSyntax string

	meta  []element // group 0002, without the group length element
	elems []element // dataset prefix, in dataset order
}

// HasMeta reports whether the object carried File Meta Information.
func (h *Header) HasMeta() bool { return len(h.meta) > 0 }

// Has reports whether the dataset prefix contains t.
func (h *Header) Has(t Tag) bool {
	for i := range h.elems {
		if h.elems[i].tag == t {
			return true
		}
	}
	return false
}

// GetString returns the string value of t from the dataset prefix, with
// trailing padding stripped. Returns "" when the tag is absent.
func (h *Header) GetString(t Tag) string {
	for i := range h.elems {
		if h.elems[i].tag == t {
			return trimPadding(h.elems[i].value)
		}
	}
	return ""
}

// SetString stores a string value for t in the dataset prefix, replacing any
// existing value and keeping the prefix in dataset order.
func (h *Header) SetString(t Tag, v string) {
	e := element{tag: t, vr: vrFor(t), value: padValue(t, v)}
	for i := range h.elems {
		switch h.elems[i].tag.Compare(t) {
		case 0:
			h.elems[i] = e
			return
		case 1:
			h.elems = append(h.elems, element{})
			copy(h.elems[i+1:], h.elems[i:])
			h.elems[i] = e
			return
		}
	}
	h.elems = append(h.elems, e)
}

// SetTransferSyntax records a new dataset encoding, keeping the meta group
// consistent when one is present.
func (h *Header) SetTransferSyntax(ts string) {
	h.TransferSyntax = ts
	if h.HasMeta() {
		h.setMetaString(TagTransferSyntaxUID, ts)
	}
}

func (h *Header) metaString(t Tag) string {
	for i := range h.meta {
		if h.meta[i].tag == t {
			return trimPadding(h.meta[i].value)
		}
	}
	return ""
}

func (h *Header) setMetaString(t Tag, v string) {
	e := element{tag: t, vr: vrFor(t), value: padValue(t, v)}
	for i := range h.meta {
		switch h.meta[i].tag.Compare(t) {
		case 0:
			h.meta[i] = e
			return
		case 1:
			h.meta = append(h.meta, element{})
			copy(h.meta[i+1:], h.meta[i:])
			h.meta[i] = e
			return
		}
	}
	h.meta = append(h.meta, e)
}

// trimPadding strips the trailing space or NUL byte DICOM uses to keep
// values even-length.
func trimPadding(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

// padValue pads v to even length: UIDs pad with NUL, everything else with
// space, per Part 5.
func padValue(t Tag, v string) []byte {
	if len(v)%2 == 0 {
		return []byte(v)
	}
	if vrFor(t) == "UI" {
		return append([]byte(v), 0x00)
	}
	return append([]byte(v), ' ')
}
