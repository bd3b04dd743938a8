// Command binject inserts, removes, extracts, lists, and verifies a named
// resource (NODE_SEA_BLOB, SMOL_VFS_BLOB, or pressed_data) in a Mach-O,
// ELF, or PE host binary.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/socketsecurity/binfuse/internal/binerr"
	"github.com/socketsecurity/binfuse/internal/sea"
)

func main() {
	log.SetFlags(0)
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}

	var err error
	switch args[0] {
	case "list":
		err = runList(args[1:])
	case "extract":
		err = runExtract(args[1:])
	case "verify":
		err = runVerify(args[1:])
	case "inject":
		err = runInject(args[1:])
	case "remove":
		err = runRemove(args[1:])
	default:
		usage()
		return 2
	}

	if err != nil {
		log.Printf("binject: %s: %v", args[0], err)
		return binerr.ExitCode(err)
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  binject list <binary>
  binject extract <binary> <resource-name> <out-path>
  binject verify <binary> <resource-name>
  binject inject <binary> <resource-name> <input-file> [--output <path>]
  binject remove <binary> <resource-name> [--output <path>]`)
}

func runList(args []string) error {
	if len(args) != 1 {
		return binerr.New(binerr.InvalidArguments, "binject.list", "", fmt.Errorf("expected <binary>"))
	}
	names, err := sea.List(args[0])
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runExtract(args []string) error {
	if len(args) != 3 {
		return binerr.New(binerr.InvalidArguments, "binject.extract", "", fmt.Errorf("expected <binary> <resource-name> <out-path>"))
	}
	name, err := sea.ParseResourceName(args[1])
	if err != nil {
		return err
	}
	return sea.Extract(args[0], name, args[2])
}

func runVerify(args []string) error {
	if len(args) != 2 {
		return binerr.New(binerr.InvalidArguments, "binject.verify", "", fmt.Errorf("expected <binary> <resource-name>"))
	}
	name, err := sea.ParseResourceName(args[1])
	if err != nil {
		return err
	}
	return sea.Verify(args[0], name)
}

func runInject(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ContinueOnError)
	output := fs.String("output", "", "write result to this path instead of overwriting <binary>")
	if err := fs.Parse(args); err != nil {
		return binerr.New(binerr.InvalidArguments, "binject.inject", "", err)
	}
	rest := fs.Args()
	if len(rest) != 3 {
		return binerr.New(binerr.InvalidArguments, "binject.inject", "", fmt.Errorf("expected <binary> <resource-name> <input-file>"))
	}
	binaryPath, name, inputFile := rest[0], rest[1], rest[2]
	rn, err := sea.ParseResourceName(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return binerr.New(binerr.IOError, "binject.inject", inputFile, err)
	}
	out := *output
	if out == "" {
		out = binaryPath
	}
	return sea.Inject(binaryPath, rn, data, out)
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	output := fs.String("output", "", "write result to this path instead of overwriting <binary>")
	if err := fs.Parse(args); err != nil {
		return binerr.New(binerr.InvalidArguments, "binject.remove", "", err)
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return binerr.New(binerr.InvalidArguments, "binject.remove", "", fmt.Errorf("expected <binary> <resource-name>"))
	}
	binaryPath, name := rest[0], rest[1]
	rn, err := sea.ParseResourceName(name)
	if err != nil {
		return err
	}
	out := *output
	if out == "" {
		out = binaryPath
	}
	return sea.Remove(binaryPath, rn, out)
}
