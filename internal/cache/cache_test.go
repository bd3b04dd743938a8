package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/socketsecurity/binfuse/internal/platform"
)

func TestWriteAndGetCachedBinaryPath(t *testing.T) {
	base := t.TempDir()
	data := []byte("#!/bin/sh\necho hi\n")
	key := ComputeCacheKey(data)
	checksum := ComputeFullChecksum(data)

	meta := platform.Metadata{Platform: platform.Linux, Arch: platform.X64, Libc: platform.LibcGlibc}
	if err := WriteToCache(base, key, "node", data, 10, "/tmp/src.bin", checksum, meta); err != nil {
		t.Fatalf("WriteToCache: %v", err)
	}

	path, ok := GetCachedBinaryPath(base, key, "node", int64(len(data)))
	if !ok {
		t.Fatal("expected cached binary to be found")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(data) {
		t.Fatal("cached content mismatch")
	}

	if _, ok := GetCachedBinaryPath(base, key, "node", int64(len(data))+1); ok {
		t.Fatal("expected size mismatch to reject cache entry")
	}

	m, err := ReadMetadata(base, key)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if m.CacheKey != key {
		t.Errorf("CacheKey = %q, want %q", m.CacheKey, key)
	}
	if m.Checksum != "sha512-"+checksum {
		t.Errorf("Checksum = %q", m.Checksum)
	}
}

func TestGetCachedBinaryPathMissing(t *testing.T) {
	base := t.TempDir()
	if _, ok := GetCachedBinaryPath(base, "deadbeefdeadbeef", "node", 10); ok {
		t.Fatal("expected missing cache entry to report not found")
	}
}

func TestVerifyExecutableRejectsSymlinkedFile(t *testing.T) {
	base := t.TempDir()
	data := []byte("payload")

	evilTarget := filepath.Join(base, "evil-target")
	if err := os.WriteFile(evilTarget, data, 0o755); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(base, "key")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	linkPath := filepath.Join(dir, "node")
	if err := os.Symlink(evilTarget, linkPath); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	if ok, _ := verifyExecutable(linkPath, int64(len(data))); ok {
		t.Fatal("expected symlinked cache entry to be rejected")
	}
}

func TestVerifyExecutableRejectsNonExecutable(t *testing.T) {
	base := t.TempDir()
	data := []byte("payload")
	path := filepath.Join(base, "node")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := verifyExecutable(path, int64(len(data))); ok {
		t.Fatal("expected non-executable cache entry to be rejected")
	}
}
