//go:build !windows

package main

import "syscall"

// execInPlace replaces the current process image with cached, forwarding
// argv[1:] as the new process's arguments and the inherited environment.
// On POSIX this is a true exec: no child process, no PID change.
func execInPlace(cached string, args, env []string) error {
	argv := append([]string{cached}, args[1:]...)
	return syscall.Exec(cached, argv, env)
}
