package sea

import (
	"fmt"
	"os"

	"github.com/socketsecurity/binfuse/internal/atomicio"
	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/binfile"
	"github.com/socketsecurity/binfuse/internal/binfmt"
	"github.com/socketsecurity/binfuse/internal/machosign"
)

// Inject installs data under logicalName in the binary at binaryPath,
// writing the result atomically to outputPath (which may equal
// binaryPath). Fuse-flip policy and per-format realization are delegated
// to internal/binfile; this layer owns only persistence and, on Mach-O,
// re-signing.
func Inject(binaryPath string, logicalName ResourceName, data []byte, outputPath string) error {
	op := "sea.Inject"
	if len(data) == 0 {
		return binerr.New(binerr.InvalidArguments, op, binaryPath, fmt.Errorf("empty resource data"))
	}

	traits, err := binfile.Open(binaryPath)
	if err != nil {
		return err
	}
	out, err := traits.AddResource(logicalName, data)
	if err != nil {
		return err
	}
	return persist(op, outputPath, out, traits.Format())
}

// Remove drops logicalName from binaryPath, writing the result atomically
// to outputPath.
func Remove(binaryPath string, logicalName ResourceName, outputPath string) error {
	op := "sea.Remove"
	traits, err := binfile.Open(binaryPath)
	if err != nil {
		return err
	}
	out, err := traits.RemoveResource(logicalName)
	if err != nil {
		return err
	}
	return persist(op, outputPath, out, traits.Format())
}

// List returns every resource present in the binary at binaryPath.
func List(binaryPath string) ([]ResourceName, error) {
	traits, err := binfile.Open(binaryPath)
	if err != nil {
		return nil, err
	}
	return traits.ListResources()
}

// Extract writes logicalName's bytes out to outPath atomically.
func Extract(binaryPath string, logicalName ResourceName, outPath string) error {
	op := "sea.Extract"
	traits, err := binfile.Open(binaryPath)
	if err != nil {
		return err
	}
	data, err := traits.ExtractResource(logicalName)
	if err != nil {
		return err
	}
	return atomicio.WriteFile(outPath, func(tmpPath string) error {
		return os.WriteFile(tmpPath, data, 0o644)
	})
}

// Verify confirms logicalName is present and its bytes can be read back
// without error; it does not compare against any expected content since
// the caller is not assumed to have a reference copy on hand.
func Verify(binaryPath string, logicalName ResourceName) error {
	op := "sea.Verify"
	traits, err := binfile.Open(binaryPath)
	if err != nil {
		return err
	}
	ok, err := traits.HasResource(logicalName)
	if err != nil {
		return err
	}
	if !ok {
		return binerr.New(binerr.ResourceNotFound, op, binaryPath, fmt.Errorf("no %s resource", logicalName))
	}
	if _, err := traits.ExtractResource(logicalName); err != nil {
		return err
	}
	return nil
}

// persist writes the mutated image to outputPath via the atomic write
// workflow, re-signing with the host codesign tool when the mutated
// binary is Mach-O (required for the binary to load on a SIP-enforcing
// macOS after any load-command change).
func persist(op, outputPath string, data []byte, format binfmt.Format) error {
	if err := atomicio.WriteFile(outputPath, func(tmpPath string) error {
		return os.WriteFile(tmpPath, data, 0o755)
	}); err != nil {
		return err
	}
	if format == binfmt.MachO {
		if err := machosign.Sign(outputPath); err != nil {
			return binerr.New(binerr.CodesignFailed, op, outputPath, err)
		}
	}
	return nil
}
