//go:build windows

package cache

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// verifyExecutable uses GetFileAttributesEx to read the file's size
// without opening a handle, per spec.md §4.7's Windows lookup path (no
// execute-bit concept on Windows, so only size is checked).
func verifyExecutable(path string, expectedSize int64) (bool, error) {
	var data windows.Win32FileAttributeData
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	if err := windows.GetFileAttributesEx(p, windows.GetFileExInfoStandard, (*byte)(unsafe.Pointer(&data))); err != nil {
		return false, err
	}

	size := int64(data.FileSizeHigh)<<32 | int64(data.FileSizeLow)
	if size != expectedSize {
		return false, errSizeMismatch
	}
	return true, nil
}
