package httpfetch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// spaceBuffer is held back below the volume's reported free space so a
// concurrent writer elsewhere on the same disk doesn't tip it over
// during our download.
const spaceBuffer = 100 * 1024 * 1024

// CheckDiskSpace reports ErrDiskFull-classified error if the volume
// containing path does not have at least required bytes free, plus
// spaceBuffer headroom. Grounded on the teacher's
// filesystem.Allocator.checkDiskSpace (disk.Usage + 100MB buffer),
// called here before the scheduler allocates a destination file.
func CheckDiskSpace(path string, required int64) error {
	if required <= 0 {
		return nil
	}
	dir := filepath.Dir(path)
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("checking disk space for %s: %w", dir, err)
	}
	if int64(usage.Free) < required+spaceBuffer {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrDiskFull, required, usage.Free)
	}
	return nil
}

// Allocate creates (or reopens, for a resumed download) the destination
// file and truncates it to size when size is known, so the filesystem
// reserves the blocks up front instead of failing midway through the
// stream, mirroring the teacher's Allocator.AllocateFile.
func Allocate(path string, size int64) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening destination file: %w", err)
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("pre-allocating destination file: %w", err)
		}
	}
	return f, nil
}
