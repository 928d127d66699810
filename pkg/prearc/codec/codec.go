// Package codec is the boundary to pixel-data decompression. The import
// path only asks two things of it: does this transfer syntax need
// normalizing, and if so, hand back a decompressed object.
package codec

import (
	"fmt"
	"io"

	"github.com/vuiis/prearc/pkg/prearc/dicomio"
	"github.com/vuiis/prearc/pkg/prearc/internalerr"
)

// Decompressor normalizes encapsulated pixel data before staging.
type Decompressor interface {
	// NeedsDecompress reports whether objects in the given transfer syntax
	// should be decompressed before staging.
	NeedsDecompress(transferSyntax string) bool

	// Decompress consumes the remainder stream of an object and returns the
	// normalized dataset bytes plus the resulting transfer syntax. Any error
	// makes the stager fall back to writing the original encoding verbatim.
	Decompress(hdr *dicomio.Header, remainder io.Reader) ([]byte, string, error)
}

// compressedSyntaxes lists the encapsulated transfer syntaxes.
var compressedSyntaxes = map[string]bool{
	dicomio.JPEGBaseline8Bit:   true,
	dicomio.JPEGExtended12Bit:  true,
	dicomio.JPEGLossless:       true,
	dicomio.JPEGLosslessSV1:    true,
	dicomio.JPEGLSLossless:     true,
	dicomio.JPEGLSNearLossless: true,
	dicomio.JPEG2000Lossless:   true,
	dicomio.JPEG2000:           true,
	dicomio.RLELossless:        true,
}

// NeedsDecompress reports whether the transfer syntax encapsulates pixel
// data.
func NeedsDecompress(transferSyntax string) bool {
	return compressedSyntaxes[transferSyntax]
}

// Registry recognizes the encapsulated syntaxes but carries no image
// codecs; its Decompress always reports unsupported, which routes every
// compressed object through the store-in-original-format fallback.
type Registry struct{}

// NeedsDecompress implements Decompressor.
func (Registry) NeedsDecompress(transferSyntax string) bool {
	return NeedsDecompress(transferSyntax)
}

// Decompress implements Decompressor.
func (Registry) Decompress(hdr *dicomio.Header, remainder io.Reader) ([]byte, string, error) {
	return nil, "", fmt.Errorf("%w: no codec for %s", internalerr.ErrUnsupportedTS, hdr.TransferSyntax)
}
