// Package machosign ad-hoc re-signs a Mach-O binary by shelling out to
// the host's codesign tool, the way macOS itself requires after any load
// command mutation invalidates the original signature.
package machosign

import (
	"os/exec"
	"runtime"

	"github.com/socketsecurity/binfuse/internal/binerr"
)

// Sign runs `codesign --sign - --force` against path. It is a no-op
// returning nil on non-Darwin platforms, where there is no code-signing
// requirement to satisfy.
func Sign(path string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	op := "machosign.Sign"
	cmd := exec.Command("codesign", "--sign", "-", "--force", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return binerr.New(binerr.CodesignFailed, op, path, combinedError(err, out))
	}
	return nil
}

func combinedError(err error, out []byte) error {
	if len(out) == 0 {
		return err
	}
	return &outputError{underlying: err, output: string(out)}
}

type outputError struct {
	underlying error
	output     string
}

func (e *outputError) Error() string {
	return e.underlying.Error() + ": " + e.output
}

func (e *outputError) Unwrap() error {
	return e.underlying
}
