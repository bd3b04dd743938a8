// Package container encodes and decodes the self-extracting payload
// layout: magic marker, size header, cache key, platform metadata, and
// the LZFSE-compressed bytes themselves.
package container

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/marker"
	"github.com/socketsecurity/binfuse/internal/platform"
)

// HeaderSize is the fixed size of everything preceding the compressed
// payload: the 40-byte marker, two 8-byte size fields, the 16-byte ASCII
// cache key, and three metadata bytes.
const HeaderSize = 40 + 8 + 8 + 16 + 1 + 1 + 1

// MaxDecompressedSize mirrors the compress package's safety cap; a
// container whose declared uncompressed size exceeds it is rejected
// before any allocation.
const MaxDecompressedSize = 512 * 1024 * 1024

// Header is the parsed form of a container's fixed-width prefix.
type Header struct {
	CompressedSize   uint64
	UncompressedSize uint64
	CacheKey         string // 16 lowercase hex chars
	Platform         platform.Platform
	Arch             platform.Arch
	Libc             platform.Libc
}

// CacheKey derives the 16-hex-character cache key from compressed bytes:
// the first 8 bytes of SHA-512, lowercase hex. Hashing the compressed
// (not original) bytes means re-encoding the same input reproduces the
// same key even if the encoder's internal state differs between runs.
func CacheKey(compressed []byte) string {
	sum := sha512.Sum512(compressed)
	return hex.EncodeToString(sum[:8])
}

// FullChecksum renders the complete 128-hex-character SHA-512 digest of
// bytes, used for the cache's .dlx-metadata.json checksum field.
func FullChecksum(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// Encode builds a container from compressed bytes, the original
// (uncompressed) size, and platform metadata. The cache key is computed
// from compressed, not original.
func Encode(compressed []byte, uncompressedSize uint64, meta platform.Metadata) ([]byte, error) {
	op := "container.Encode"

	if len(compressed) == 0 {
		return nil, binerr.New(binerr.InvalidArguments, op, "", fmt.Errorf("empty compressed input"))
	}
	if uint64(len(compressed)) >= uncompressedSize {
		return nil, binerr.New(binerr.CompressFailed, op, "", fmt.Errorf("compressed size %d not smaller than uncompressed size %d", len(compressed), uncompressedSize))
	}
	if uncompressedSize > MaxDecompressedSize {
		return nil, binerr.New(binerr.SizeLimitExceeded, op, "", fmt.Errorf("uncompressed size %d exceeds limit %d", uncompressedSize, MaxDecompressedSize))
	}

	total := uint64(HeaderSize) + uint64(len(compressed))
	if total < uint64(len(compressed)) {
		return nil, binerr.New(binerr.AllocationFailed, op, "", fmt.Errorf("container size overflow"))
	}

	key := CacheKey(compressed)
	if len(key) != 16 {
		return nil, binerr.New(binerr.Unknown, op, "", fmt.Errorf("unexpected cache key length %d", len(key)))
	}

	buf := make([]byte, HeaderSize, total)
	copy(buf[0:40], marker.ContainerMarker())
	binary.LittleEndian.PutUint64(buf[40:48], uint64(len(compressed)))
	binary.LittleEndian.PutUint64(buf[48:56], uncompressedSize)
	copy(buf[56:72], key)
	buf[72] = byte(meta.Platform)
	buf[73] = byte(meta.Arch)
	buf[74] = byte(meta.Libc)

	buf = append(buf, compressed...)
	return buf, nil
}

// Decode parses a container's header, verifies the marker and metadata
// bytes, and returns the header plus a view of the compressed payload
// (sharing the input's backing array, not a copy).
func Decode(b []byte) (Header, []byte, error) {
	op := "container.Decode"

	if len(b) < HeaderSize {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("container too short: %d bytes", len(b)))
	}
	if string(b[0:40]) != marker.ContainerMarker() {
		return Header{}, nil, binerr.New(binerr.MarkerNotFound, op, "", fmt.Errorf("marker mismatch"))
	}

	compressedSize := binary.LittleEndian.Uint64(b[40:48])
	uncompressedSize := binary.LittleEndian.Uint64(b[48:56])
	cacheKey := string(b[56:72])

	if compressedSize >= uncompressedSize {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("compressed_size %d not less than uncompressed_size %d", compressedSize, uncompressedSize))
	}
	if uncompressedSize > MaxDecompressedSize {
		return Header{}, nil, binerr.New(binerr.SizeLimitExceeded, op, "", fmt.Errorf("uncompressed_size %d exceeds limit", uncompressedSize))
	}

	p := platform.Platform(b[72])
	a := platform.Arch(b[73])
	l := platform.Libc(b[74])
	if p > platform.Win32 {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("invalid platform byte %d", b[72]))
	}
	if a > platform.ARM64 {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("invalid arch byte %d", b[73]))
	}
	if l > platform.LibcMusl {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("invalid libc byte %d", b[74]))
	}

	end := uint64(HeaderSize) + compressedSize
	if end > uint64(len(b)) {
		return Header{}, nil, binerr.New(binerr.InvalidFormat, op, "", fmt.Errorf("container truncated: need %d bytes, have %d", end, len(b)))
	}

	hdr := Header{
		CompressedSize:   compressedSize,
		UncompressedSize: uncompressedSize,
		CacheKey:         cacheKey,
		Platform:         p,
		Arch:             a,
		Libc:             l,
	}
	return hdr, b[HeaderSize:end], nil
}
