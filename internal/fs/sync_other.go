//go:build !linux

package fs

// Datasync flushes file data. On platforms without fdatasync this is a
// full Sync.
func Datasync(f File) error {
	return f.Sync()
}
