// Package lzfse is the thinnest possible wrapper over
// github.com/blacktop/lzfse-cgo, the LZFSE binding maintained alongside
// this project's Mach-O teacher in the blacktop/ipsw toolchain. It vendors
// Apple's portable reference LZFSE implementation, so unlike a dlopen into
// libcompression.dylib it works identically on Darwin, Linux, and Windows.
//
// Everything above this package deals only in plain []byte and error; no
// caller needs to know the codec underneath is cgo.
package lzfse

import (
	"fmt"

	cgo "github.com/blacktop/lzfse-cgo"
)

// Encode compresses src with LZFSE. It returns an error if the underlying
// encoder fails or produces no output (e.g. for pathologically small or
// empty input); callers are responsible for the "did it actually shrink"
// check (see internal/compress), since that contract lives one layer up.
func Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("lzfse: empty input")
	}
	out := cgo.EncodeBuffer(src)
	if len(out) == 0 {
		return nil, fmt.Errorf("lzfse: encode produced no output")
	}
	return out, nil
}

// DecodeExact decompresses src into a buffer of exactly outSize bytes. It
// returns an error if the decoder does not produce exactly outSize bytes.
func DecodeExact(src []byte, outSize int) ([]byte, error) {
	if outSize <= 0 {
		return nil, fmt.Errorf("lzfse: invalid output size %d", outSize)
	}
	dst := make([]byte, outSize)
	n := cgo.DecodeBufferInto(src, dst)
	if n != outSize {
		return nil, fmt.Errorf("lzfse: decoded %d bytes, want %d", n, outSize)
	}
	return dst, nil
}

// DecodeUpTo decompresses src into a buffer of the given capacity without
// requiring the decoder to fill it exactly. It returns the decoded bytes
// and whether the buffer filled completely — DecodeBuffer's signal that
// capacity may have been too small and the real output got truncated,
// rather than that capacity happened to match the true size.
func DecodeUpTo(src []byte, capacity int) (dst []byte, filled bool, err error) {
	if capacity <= 0 {
		return nil, false, fmt.Errorf("lzfse: invalid capacity %d", capacity)
	}
	buf := make([]byte, capacity)
	n := cgo.DecodeBufferInto(src, buf)
	if n <= 0 {
		return nil, false, fmt.Errorf("lzfse: decode produced no output")
	}
	return buf[:n], n == capacity, nil
}
