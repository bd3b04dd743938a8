// Package platform resolves the {platform, arch, libc} triple written into
// every container header and cache metadata entry, and the environment
// variables the core consults to locate the content-addressed cache.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform is the container header's platform byte.
type Platform uint8

const (
	Darwin Platform = 0
	Linux  Platform = 1
	Win32  Platform = 2
)

func (p Platform) String() string {
	switch p {
	case Darwin:
		return "darwin"
	case Linux:
		return "linux"
	case Win32:
		return "win32"
	default:
		return "unknown"
	}
}

// Arch is the container header's architecture byte.
type Arch uint8

const (
	X64   Arch = 0
	ARM64 Arch = 1
)

func (a Arch) String() string {
	switch a {
	case X64:
		return "x64"
	case ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Libc is the container header's libc byte. It is meaningful only when
// Platform == Linux.
type Libc uint8

const (
	LibcNone  Libc = 0
	LibcGlibc Libc = 1
	LibcMusl  Libc = 2
)

func (l Libc) String() string {
	switch l {
	case LibcGlibc:
		return "glibc"
	case LibcMusl:
		return "musl"
	default:
		return ""
	}
}

// Metadata is the {platform, arch, libc} triple stamped into a container
// header and a cache entry's metadata JSON. NodeABI supplements the
// original spec's data model with the platform/arch spellings Node.js
// itself uses (see SPEC_FULL.md §4.6); the cache writes those spellings
// into its metadata JSON.
type Metadata struct {
	Platform Platform
	Arch     Arch
	Libc     Libc
}

// Current returns the Metadata for the platform/arch this process is
// running on, detecting libc at runtime on Linux per spec.md §4.6.
func Current() Metadata {
	m := Metadata{Platform: currentPlatform(), Arch: currentArch()}
	if m.Platform == Linux {
		m.Libc = detectLibc()
	}
	return m
}

func currentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return Darwin
	case "windows":
		return Win32
	default:
		return Linux
	}
}

func currentArch() Arch {
	switch runtime.GOARCH {
	case "arm64":
		return ARM64
	default:
		return X64
	}
}

// NodeABI renders the platform/arch pair the way Node.js's own
// process.platform/process.arch would; internal/cache uses it for the
// platform and arch fields of a cache entry's metadata JSON.
func (m Metadata) NodeABI() (platform, arch string) {
	switch m.Platform {
	case Darwin:
		platform = "darwin"
	case Win32:
		platform = "win32"
	default:
		platform = "linux"
	}
	switch m.Arch {
	case ARM64:
		arch = "arm64"
	default:
		arch = "x64"
	}
	return platform, arch
}

// BinaryName is the cached executable's filename for this platform: "node"
// everywhere except Windows, which needs the .exe suffix to be
// loader-recognizable and CreateProcess-able.
func (m Metadata) BinaryName() string {
	if m.Platform == Win32 {
		return "node.exe"
	}
	return "node"
}

// DLXDir resolves the content-addressed cache's base directory from the
// environment, in priority order: SOCKET_DLX_DIR, SOCKET_HOME/_dlx,
// $HOME/.socket/_dlx, <tmp>/.socket/_dlx. PATH is never consulted.
func DLXDir() string {
	if v := os.Getenv("SOCKET_DLX_DIR"); v != "" {
		return v
	}
	if v := os.Getenv("SOCKET_HOME"); v != "" {
		return filepath.Join(v, "_dlx")
	}
	if v := homeDir(); v != "" {
		return filepath.Join(v, ".socket", "_dlx")
	}
	return filepath.Join(tempDir(), ".socket", "_dlx")
}

func homeDir() string {
	return os.Getenv("HOME")
}

func tempDir() string {
	for _, key := range []string{"TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return os.TempDir()
}
