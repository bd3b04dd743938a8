//go:build windows

package main

import (
	"os"
	"os/exec"
)

// execInPlace has no true exec() on Windows, so it starts cached as a
// child, forwards its standard streams, waits for it, and mirrors its
// exit code before the parent process itself exits.
func execInPlace(cached string, args, env []string) error {
	cmd := exec.Command(cached, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	os.Exit(0)
	return nil
}
