// Package compress implements the core's compression codec contract (C3):
// LZFSE encode/decode with a bounded, geometric-retry decompression probe
// and a hard ceiling on how much memory a hostile or corrupt container can
// make us allocate.
package compress

import (
	"fmt"
	"math"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/lzfse"
)

// MaxDecompressedSize is the safety cap on any single decompression: no
// container, however it claims to be sized, is ever inflated past this.
const MaxDecompressedSize = 512 * 1024 * 1024

const op = "compress"

// EncodeBuffer compresses src with LZFSE. It fails if the compressed
// output is not strictly smaller than the input — the container format
// never stores an inflated payload (see SPEC_FULL.md Open Questions: this
// is left as a hard failure, not a passthrough, by design decision
// inherited unchanged from spec.md).
func EncodeBuffer(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("empty input"))
	}
	out, err := lzfse.Encode(src)
	if err != nil {
		return nil, binerr.New(binerr.CompressFailed, op, "", err)
	}
	if len(out) >= len(src) {
		return nil, binerr.New(binerr.CompressFailed, op, "", fmt.Errorf("compressed size %d >= input size %d", len(out), len(src)))
	}
	return out, nil
}

// DecodeBuffer decompresses src of unknown output size. It probes with an
// initial capacity of 4x the input size, doubling up to three attempts
// total (4x, 8x, 16x), refusing any capacity that would exceed
// MaxDecompressedSize or overflow int. A probe that fills its buffer
// completely is treated as possibly truncated and retried with a bigger
// one; a probe that returns fewer bytes than its capacity is trusted as
// the real, complete output, since LZFSE frames carry their own end
// marker and the decoder does not return early.
func DecodeBuffer(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("empty input"))
	}

	capacity := 4 * len(src)
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			capacity *= 2
		}
		if capacity <= 0 || capacity > math.MaxInt32 {
			return nil, binerr.New(binerr.SizeLimitExceeded, op, "", fmt.Errorf("capacity overflow at attempt %d", attempt))
		}
		if capacity > MaxDecompressedSize {
			if attempt == 0 {
				return nil, binerr.New(binerr.SizeLimitExceeded, op, "", fmt.Errorf("initial capacity %d exceeds MaxDecompressedSize", capacity))
			}
			capacity = MaxDecompressedSize
		}

		out, filled, err := lzfse.DecodeUpTo(src, capacity)
		if err == nil && !filled {
			return out, nil
		}
		if capacity == MaxDecompressedSize {
			if err != nil {
				return nil, binerr.New(binerr.DecompressFailed, op, "", err)
			}
			if filled {
				return nil, binerr.New(binerr.DecompressFailed, op, "", fmt.Errorf("decoded output still filled the %d-byte ceiling", capacity))
			}
		}
	}
	return nil, binerr.New(binerr.DecompressFailed, op, "", fmt.Errorf("decompression did not converge after 3 attempts"))
}

// DecodeBufferSized decompresses src into a buffer of exactly
// expectedSize bytes. It is used when the container header's declared
// uncompressed size is already trusted (e.g. freshly produced by our own
// Encode), so no retry probing is needed or allowed.
func DecodeBufferSized(src []byte, expectedSize int) ([]byte, error) {
	if expectedSize <= 0 {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("invalid expected size %d", expectedSize))
	}
	if expectedSize > MaxDecompressedSize {
		return nil, binerr.New(binerr.SizeLimitExceeded, op, "", fmt.Errorf("expected size %d exceeds MaxDecompressedSize", expectedSize))
	}
	out, err := lzfse.DecodeExact(src, expectedSize)
	if err != nil {
		return nil, binerr.New(binerr.DecompressFailed, op, "", err)
	}
	return out, nil
}
