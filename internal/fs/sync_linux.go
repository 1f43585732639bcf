//go:build linux

package fs

import "golang.org/x/sys/unix"

// Datasync flushes file data without forcing a metadata flush where the
// platform supports it. Falls back to a full Sync for wrapped files
// that do not expose a descriptor (e.g. FaultyFS).
func Datasync(f File) error {
	if fd, ok := f.(interface{ Fd() uintptr }); ok {
		return unix.Fdatasync(int(fd.Fd()))
	}
	return f.Sync()
}
