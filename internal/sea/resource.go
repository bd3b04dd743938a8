// Package sea composes the binary traits facade (internal/binfile), the
// ELF/Mach-O/PE writers, the compression container, the content-addressed
// cache, and the atomic write workflow into the five public operations a
// SEA/SMOL tool needs: inject, remove, list, extract, verify, plus the
// compress/decompress pair binpress and binflate drive.
package sea

import (
	"fmt"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfile"
)

// ResourceName aliases internal/binfile's logical resource identifiers so
// callers of this package never need to import binfile directly.
type ResourceName = binfile.ResourceName

const (
	NodeSeaBlob ResourceName = binfile.NodeSeaBlob
	SmolVFSBlob ResourceName = binfile.SmolVFSBlob
	PressedData ResourceName = binfile.PressedData
)

// ParseResourceName validates a CLI-supplied resource name string against
// the three logical names this core understands.
func ParseResourceName(s string) (ResourceName, error) {
	switch ResourceName(s) {
	case NodeSeaBlob, SmolVFSBlob, PressedData:
		return ResourceName(s), nil
	default:
		return "", binerr.New(binerr.InvalidArguments, "sea.ParseResourceName", "", fmt.Errorf("unknown resource name %q", s))
	}
}
