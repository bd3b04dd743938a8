// Package cache implements the content-addressed store that binflate
// extracts decompressed binaries into, keyed by the compressed bytes'
// SHA-512 prefix.
package cache

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/platform"
)

// Metadata is the schema of a cache entry's sibling .dlx-metadata.json.
type Metadata struct {
	Version              string `json:"version"`
	CacheKey             string `json:"cache_key"`
	TimestampMs          int64  `json:"timestamp_ms"`
	Checksum             string `json:"checksum"`
	ChecksumAlgorithm    string `json:"checksum_algorithm"`
	Platform             string `json:"platform"`
	Arch                 string `json:"arch"`
	Libc                 string `json:"libc,omitempty"`
	Size                 int64  `json:"size"`
	Source               Source `json:"source"`
	Extra                Extra  `json:"extra"`
}

type Source struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type Extra struct {
	CompressedSize        int64   `json:"compressed_size"`
	CompressionAlgorithm  string  `json:"compression_algorithm"`
	CompressionRatio      float64 `json:"compression_ratio"`
}

const metadataFilename = ".dlx-metadata.json"

// ComputeCacheKey returns the 16-hex-character cache key: the first 8
// bytes of SHA-512(bytes), lowercase.
func ComputeCacheKey(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:8])
}

// ComputeFullChecksum returns the full 128-hex-character SHA-512 digest.
func ComputeFullChecksum(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// entryDir returns <base>/<cacheKey>.
func entryDir(base, cacheKey string) string {
	return filepath.Join(base, cacheKey)
}

// GetExtractedBinaryPath returns <base>/<cacheKey>/<binaryName> without
// checking whether it exists.
func GetExtractedBinaryPath(base, cacheKey, binaryName string) string {
	return filepath.Join(entryDir(base, cacheKey), binaryName)
}

// GetCachedBinaryPath returns the path to a valid cached binary, or
// ("", false) if no valid entry exists. "Valid" means: the file opens
// without following a symlink, its size matches expectedSize exactly,
// and at least one execute bit is set.
func GetCachedBinaryPath(base, cacheKey, binaryName string, expectedSize int64) (string, bool) {
	path := GetExtractedBinaryPath(base, cacheKey, binaryName)
	ok, err := verifyExecutable(path, expectedSize)
	if err != nil || !ok {
		return "", false
	}
	return path, true
}

// WriteToCache streams bytes into <base>/<cacheKey>/<binaryName> in 64 KiB
// chunks with mode 0755, then writes the sibling metadata file. If the
// metadata write fails, the binary is removed so a partial entry is never
// observable by a concurrent reader.
func WriteToCache(base, cacheKey, binaryName string, bytesData []byte, compressedSize int64, sourcePath string, checksum string, meta platform.Metadata) error {
	op := "cache.WriteToCache"
	dir := entryDir(base, cacheKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return binerr.New(binerr.WriteFailed, op, dir, err)
	}

	binPath := filepath.Join(dir, binaryName)
	if err := streamWrite(binPath, bytesData); err != nil {
		return binerr.New(binerr.WriteFailed, op, binPath, err)
	}

	platformStr, archStr := meta.NodeABI()
	libcStr := ""
	if meta.Platform == platform.Linux {
		libcStr = meta.Libc.String()
	}

	ratio := 0.0
	if len(bytesData) > 0 {
		ratio = float64(compressedSize) / float64(len(bytesData))
	}

	entry := Metadata{
		Version:           "1.0.0",
		CacheKey:          cacheKey,
		TimestampMs:       time.Now().UnixMilli(),
		Checksum:          "sha512-" + checksum,
		ChecksumAlgorithm: "sha512",
		Platform:          platformStr,
		Arch:              archStr,
		Libc:              libcStr,
		Size:              int64(len(bytesData)),
		Source: Source{
			Type: "file",
			Path: sourcePath,
		},
		Extra: Extra{
			CompressedSize:       compressedSize,
			CompressionAlgorithm: "lzfse",
			CompressionRatio:     ratio,
		},
	}

	metaPath := filepath.Join(dir, metadataFilename)
	raw, err := json.Marshal(entry)
	if err != nil {
		os.Remove(binPath)
		return binerr.New(binerr.WriteFailed, op, metaPath, err)
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		os.Remove(binPath)
		return binerr.New(binerr.WriteFailed, op, metaPath, err)
	}
	return nil
}

// WriteToCacheWithTimestamp is WriteToCache but lets the caller stamp the
// metadata's timestamp_ms explicitly, for tests that assert on an exact
// value rather than "close to now".
func WriteToCacheWithTimestamp(base, cacheKey, binaryName string, bytesData []byte, compressedSize int64, sourcePath, checksum string, meta platform.Metadata, timestampMs int64) error {
	if err := WriteToCache(base, cacheKey, binaryName, bytesData, compressedSize, sourcePath, checksum, meta); err != nil {
		return err
	}
	dir := entryDir(base, cacheKey)
	metaPath := filepath.Join(dir, metadataFilename)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return binerr.New(binerr.WriteFailed, "cache.WriteToCacheWithTimestamp", metaPath, err)
	}
	var entry Metadata
	if err := json.Unmarshal(raw, &entry); err != nil {
		return binerr.New(binerr.CacheCorrupt, "cache.WriteToCacheWithTimestamp", metaPath, err)
	}
	entry.TimestampMs = timestampMs
	raw, err = json.Marshal(entry)
	if err != nil {
		return binerr.New(binerr.WriteFailed, "cache.WriteToCacheWithTimestamp", metaPath, err)
	}
	return os.WriteFile(metaPath, raw, 0o644)
}

func streamWrite(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()

	const chunkSize = 64 * 1024
	r := bytes.NewReader(data)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return f.Sync()
}

// ReadMetadata reads and parses a cache entry's .dlx-metadata.json.
func ReadMetadata(base, cacheKey string) (Metadata, error) {
	op := "cache.ReadMetadata"
	path := filepath.Join(entryDir(base, cacheKey), metadataFilename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, binerr.New(binerr.CacheCorrupt, op, path, err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, binerr.New(binerr.CacheCorrupt, op, path, err)
	}
	return m, nil
}

var errNotExecutable = fmt.Errorf("cache: no execute bit set")
var errSizeMismatch = fmt.Errorf("cache: size mismatch")
