package platform

import (
	"os"
	"testing"
)

func TestDLXDirPriority(t *testing.T) {
	t.Setenv("SOCKET_DLX_DIR", "")
	t.Setenv("SOCKET_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("TMPDIR", "")
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	t.Setenv("SOCKET_DLX_DIR", "/explicit/dlx")
	if got := DLXDir(); got != "/explicit/dlx" {
		t.Errorf("SOCKET_DLX_DIR priority: got %q", got)
	}

	os.Unsetenv("SOCKET_DLX_DIR")
	t.Setenv("SOCKET_HOME", "/socket/home")
	if got := DLXDir(); got != "/socket/home/_dlx" {
		t.Errorf("SOCKET_HOME priority: got %q", got)
	}

	os.Unsetenv("SOCKET_HOME")
	t.Setenv("HOME", "/home/user")
	if got := DLXDir(); got != "/home/user/.socket/_dlx" {
		t.Errorf("HOME priority: got %q", got)
	}
}

func TestBinaryName(t *testing.T) {
	if (Metadata{Platform: Win32}).BinaryName() != "node.exe" {
		t.Error("windows binary name should be node.exe")
	}
	if (Metadata{Platform: Linux}).BinaryName() != "node" {
		t.Error("non-windows binary name should be node")
	}
}

func TestNodeABI(t *testing.T) {
	p, a := Metadata{Platform: Darwin, Arch: ARM64}.NodeABI()
	if p != "darwin" || a != "arm64" {
		t.Errorf("got %s/%s", p, a)
	}
}
