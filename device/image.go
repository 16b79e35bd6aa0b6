package device

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ReadAt reads len(buf) bytes from the snapshot device starting at offset,
// looping on short reads the way WriteAt loops on short writes.
func (s *Snapshot) ReadAt(buf []byte, offset int64) error {
	read := 0
	for read < len(buf) {
		n, err := unix.Pread(s.fd, buf[read:], offset+int64(read))
		if err != nil {
			return fmt.Errorf("device: read at offset %d: %w", offset+int64(read), err)
		}
		if n == 0 {
			return fmt.Errorf("device: read at offset %d: unexpected EOF", offset+int64(read))
		}
		read += n
	}
	return nil
}

// SaveImage copies sizeBytes off the snapshot device into a fresh raw
// image file at path, the same bytes a restored crash state would expose
// to the file system, so a run can be replayed later without a live
// kernel module.
func SaveImage(path string, snap *Snapshot, sizeBytes int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("device: create image %s: %w", path, err)
	}
	defer f.Close()

	const chunk = 4 << 20
	buf := make([]byte, chunk)
	var off int64
	for off < sizeBytes {
		n := int64(chunk)
		if remaining := sizeBytes - off; remaining < n {
			n = remaining
		}
		if err := snap.ReadAt(buf[:n], off); err != nil {
			return fmt.Errorf("device: read snapshot for image save: %w", err)
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return fmt.Errorf("device: write image %s: %w", path, err)
		}
		off += n
	}
	return nil
}

// LoadImage restores a raw image previously written by SaveImage: it
// wipes the outstanding CoW snapshot, writes the image bytes to the
// cow_brd control device, fsyncs, and takes a fresh snapshot so
// subsequent crash-state rounds replay against this image's baseline
// instead of the workload's own setup/run.
func LoadImage(path string, cow *CowDisk, snap *Snapshot) (*Snapshot, error) {
	if err := snap.Wipe(); err != nil {
		return nil, fmt.Errorf("device: wipe snapshot before image load: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("device: open image %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(cowBrdControlPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s for image load: %w", cowBrdControlPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil, fmt.Errorf("device: write image to %s: %w", cowBrdControlPath, err)
	}
	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("device: fsync %s after image load: %w", cowBrdControlPath, err)
	}

	return cow.Snapshot()
}
