// Command binflate is the runtime decompressor for binpress output: it
// locates its own running executable, finds the pressed_data container
// that executable carries, decompresses (or reuses the cached) inner
// binary, and replaces itself with it, forwarding argv and the
// environment unchanged.
package main

import (
	"log"
	"os"
	"time"

	"github.com/socketsecurity/binfuse/internal/atomicio"
	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/platform"
	"github.com/socketsecurity/binfuse/internal/sea"
)

func main() {
	log.SetFlags(0)
	os.Exit(run())
}

func run() int {
	if os.Getenv("BINFUSE_CLEAN_STALE") == "1" {
		atomicio.CleanupStale(platform.DLXDir(), 24*time.Hour)
	}

	self, err := os.Executable()
	if err != nil {
		log.Printf("binflate: %v", err)
		return binerr.ExitCode(binerr.New(binerr.IOError, "binflate", "", err))
	}

	cached, err := sea.Decompress(self)
	if err != nil {
		log.Printf("binflate: %v", err)
		return binerr.ExitCode(err)
	}

	if err := execInPlace(cached, os.Args, os.Environ()); err != nil {
		log.Printf("binflate: %v", err)
		return binerr.ExitCode(binerr.New(binerr.IOError, "binflate", cached, err))
	}
	return 0
}
