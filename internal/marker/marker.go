// Package marker assembles the core's two magic sentinels from
// compile-time parts — so the literal never appears contiguous in any one
// source file or in the compiled tool binaries — and scans a byte stream
// or an ELF PT_NOTE list for them.
package marker

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// The 40-byte container marker, split across three package vars so that
// no single source file — and, more importantly, no single rodata string
// table entry in the compiled binary — carries the full 40-byte literal
// contiguously. These must stay vars, not consts: untyped string consts
// concatenated with "+" are a constant expression the compiler folds into
// one literal at compile time, which would put the very thing this split
// exists to avoid right back into this binary's own rodata.
var (
	containerPartA = "SOCKET_BINFUSE_SMOL_CONTAINER_"
	containerPartB = "7f3c9e"
	containerPartC = "1d4b"
)

// The 33-byte marker used by the inner decompressor stub, split the same
// way.
var (
	stubPartA = "SOCKET_SMOL_STUB_"
	stubPartB = "9a6f1c"
	stubPartC = "03d71c88a1"
)

// ContainerMarker reconstructs the 40-byte container marker at runtime.
func ContainerMarker() string {
	return containerPartA + containerPartB + containerPartC
}

// StubMarker reconstructs the 33-byte inner stub marker at runtime.
func StubMarker() string {
	return stubPartA + stubPartB + stubPartC
}

// Parts returns the three compile-time fragments of the container marker,
// for callers (the stream scanner, tests) that need to verify a
// reconstruction without importing the constants directly.
func Parts() [3]string {
	return [3]string{containerPartA, containerPartB, containerPartC}
}

// StubParts returns the three compile-time fragments of the stub marker.
func StubParts() [3]string {
	return [3]string{stubPartA, stubPartB, stubPartC}
}

func reconstruct(parts [3]string) string {
	return parts[0] + parts[1] + parts[2]
}

// ErrNotFound reports that a scan completed without locating the marker.
// It is deliberately distinguishable from binerr's I/O-flavored errors:
// for most callers a missing marker is an expected, non-fatal outcome,
// not an I/O failure.
var ErrNotFound = fmt.Errorf("marker: not found")

// wrap turns ErrNotFound into the stable MarkerNotFound kind while letting
// genuine I/O errors keep their IOError kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == ErrNotFound {
		return binerr.New(binerr.MarkerNotFound, op, "", err)
	}
	return binerr.New(binerr.IOError, op, "", err)
}
