package dicomio

import (
	"encoding/binary"
	"io"
)

// EnsureMeta synthesizes File Meta Information for objects that arrived as
// bare datasets, mirroring what a storage SCP would have written. senderAE,
// when non-empty, is recorded as the Source Application Entity Title.
// Objects that already carry a meta group are left alone.
func (o *Object) EnsureMeta(senderAE string) {
	h := o.Header
	if h.HasMeta() {
		return
	}
	ts := h.TransferSyntax
	if ts == "" {
		ts = ImplicitVRLittleEndian
		h.TransferSyntax = ts
	}
	h.meta = append(h.meta, element{
		tag:   TagFileMetaInformationVersion,
		vr:    "OB",
		value: []byte{0x00, 0x01},
	})
	h.setMetaString(TagMediaStorageSOPClassUID, h.GetString(TagSOPClassUID))
	h.setMetaString(TagMediaStorageSOPInstanceUID, h.GetString(TagSOPInstanceUID))
	h.setMetaString(TagTransferSyntaxUID, ts)
	if senderAE != "" {
		h.setMetaString(TagSourceApplicationEntityTitle, senderAE)
	}
}

// WriteTo rewrites the object: Part 10 preamble, File Meta group with a
// recomputed group length, the parsed dataset prefix, then the unread
// remainder copied verbatim. Objects without a meta group are written as
// bare datasets.
func (o *Object) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	h := o.Header

	if h.HasMeta() {
		var preamble [128]byte
		if _, err := cw.Write(preamble[:]); err != nil {
			return cw.n, err
		}
		if _, err := io.WriteString(cw, "DICM"); err != nil {
			return cw.n, err
		}

		var group []byte
		for _, e := range h.meta {
			group = append(group, encodeElement(e, true)...)
		}
		lenElem := element{tag: TagFileMetaInformationGroupLength, vr: "UL", value: make([]byte, 4)}
		binary.LittleEndian.PutUint32(lenElem.value, uint32(len(group)))
		if _, err := cw.Write(encodeElement(lenElem, true)); err != nil {
			return cw.n, err
		}
		if _, err := cw.Write(group); err != nil {
			return cw.n, err
		}
	}

	explicit := h.TransferSyntax != ImplicitVRLittleEndian
	for _, e := range h.elems {
		if _, err := cw.Write(encodeElement(e, explicit)); err != nil {
			return cw.n, err
		}
	}

	if o.remainder != nil {
		if _, err := io.Copy(cw, o.remainder); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

func encodeElement(e element, explicit bool) []byte {
	out := make([]byte, 4, 8+len(e.value))
	binary.LittleEndian.PutUint16(out[0:2], e.tag.Group)
	binary.LittleEndian.PutUint16(out[2:4], e.tag.Element)

	length := uint32(len(e.value))
	if e.undefLen {
		length = 0xFFFFFFFF
	}

	if explicit {
		vr := e.vr
		if len(vr) != 2 {
			vr = "UN"
		}
		out = append(out, vr[0], vr[1])
		if isLongVR(vr) {
			out = append(out, 0x00, 0x00)
			out = binary.LittleEndian.AppendUint32(out, length)
		} else {
			out = binary.LittleEndian.AppendUint16(out, uint16(length))
		}
	} else {
		out = binary.LittleEndian.AppendUint32(out, length)
	}
	return append(out, e.value...)
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
