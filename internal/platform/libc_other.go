//go:build !linux

package platform

// detectLibc is only meaningful on Linux; other platforms never populate
// Metadata.Libc.
func detectLibc() Libc {
	return LibcNone
}
