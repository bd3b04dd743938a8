package sea

import (
	"bytes"
	"fmt"
	"os"

	"github.com/socketsecurity/binfuse/internal/atomicio"
	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfile"
	"github.com/socketsecurity/binfuse/internal/cache"
	"github.com/socketsecurity/binfuse/internal/compress"
	"github.com/socketsecurity/binfuse/internal/container"
	"github.com/socketsecurity/binfuse/internal/marker"
	"github.com/socketsecurity/binfuse/internal/platform"
)

// Compress implements binpress: it compresses binaryPath's own bytes with
// LZFSE, wraps them in a container (§3/§4.4), and injects that container
// as the pressed_data resource back into a copy of the binary itself —
// the per-format realization C14 specifies (ELF note, Mach-O SMOL
// segment, PE section) — writing the result atomically to outPath. The
// resulting file is self-extracting: binflate locates the container via
// its own marker scan and never needs a side-channel index.
func Compress(binaryPath, outPath string) error {
	op := "sea.Compress"

	original, err := os.ReadFile(binaryPath)
	if err != nil {
		return binerr.New(binerr.IOError, op, binaryPath, err)
	}

	compressed, err := compress.EncodeBuffer(original)
	if err != nil {
		return err
	}

	meta := platform.Current()
	blob, err := container.Encode(compressed, uint64(len(original)), meta)
	if err != nil {
		return err
	}

	traits, err := binfile.OpenBytes(binaryPath, original)
	if err != nil {
		return err
	}
	out, err := traits.AddResource(PressedData, blob)
	if err != nil {
		return err
	}

	return persist(op, outPath, out, traits.Format())
}

// Decompress implements binflate's core: given the path to the currently
// running self-extracting binary, it locates the pressed_data container
// by scanning the file for the container marker,
// decompresses it (consulting the content-addressed cache first), and
// returns the path to a ready-to-exec cached binary.
func Decompress(selfPath string) (string, error) {
	op := "sea.Decompress"

	raw, err := os.ReadFile(selfPath)
	if err != nil {
		return "", binerr.New(binerr.IOError, op, selfPath, err)
	}

	off, err := marker.FindInStream(bytes.NewReader(raw), int64(len(raw)), marker.Parts(), false)
	if err != nil {
		return "", err
	}

	hdr, compressed, err := container.Decode(raw[off:])
	if err != nil {
		return "", err
	}

	base := platform.DLXDir()
	meta := platform.Metadata{Platform: hdr.Platform, Arch: hdr.Arch, Libc: hdr.Libc}
	binaryName := meta.BinaryName()

	if path, ok := cache.GetCachedBinaryPath(base, hdr.CacheKey, binaryName, int64(hdr.UncompressedSize)); ok {
		return path, nil
	}

	decoded, err := compress.DecodeBufferSized(compressed, int(hdr.UncompressedSize))
	if err != nil {
		return "", err
	}

	checksum := container.FullChecksum(decoded)
	if err := cache.WriteToCache(base, hdr.CacheKey, binaryName, decoded, int64(hdr.CompressedSize), selfPath, checksum, meta); err != nil {
		return "", err
	}

	path, ok := cache.GetCachedBinaryPath(base, hdr.CacheKey, binaryName, int64(hdr.UncompressedSize))
	if !ok {
		return "", binerr.New(binerr.CacheCorrupt, op, base, fmt.Errorf("cache entry %s not valid immediately after write", hdr.CacheKey))
	}
	return path, nil
}

// Repack runs Compress and then immediately exercises Decompress against
// the result in a scratch cache directory, mirroring the original
// tooling's --verify-after-compress build step. It is additive: it
// changes no existing operation's contract, and an error here always
// means Compress's own output (not some separate artifact) failed its
// own round trip.
func Repack(binaryPath, outPath string) error {
	op := "sea.Repack"
	if err := Compress(binaryPath, outPath); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "binfuse-repack-verify-*")
	if err != nil {
		return binerr.New(binerr.IOError, op, "", err)
	}
	defer os.RemoveAll(scratch)

	origDLX := os.Getenv("SOCKET_DLX_DIR")
	os.Setenv("SOCKET_DLX_DIR", scratch)
	defer func() {
		if origDLX == "" {
			os.Unsetenv("SOCKET_DLX_DIR")
		} else {
			os.Setenv("SOCKET_DLX_DIR", origDLX)
		}
	}()

	if _, err := Decompress(outPath); err != nil {
		return binerr.New(binerr.CacheCorrupt, op, outPath, fmt.Errorf("post-compress verification failed: %w", err))
	}
	return nil
}
