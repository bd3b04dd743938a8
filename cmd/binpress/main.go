// Command binpress compresses a binary and injects the result back into a
// copy of itself as a self-extracting pressed_data resource, ready for
// binflate to locate and run at the other end.
package main

import (
	"fmt"
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
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: binpress <binary> <out>")
		return 2
	}

	if os.Getenv("BINFUSE_CLEAN_STALE") == "1" {
		atomicio.CleanupStale(platform.DLXDir(), 24*time.Hour)
	}

	if err := sea.Compress(args[0], args[1]); err != nil {
		log.Printf("binpress: %v", err)
		return binerr.ExitCode(err)
	}
	return 0
}
