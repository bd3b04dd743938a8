package marker

import (
	"bytes"
	"io"
)

const pageSize = 4096

// FindInStream scans r (size bytes total) for the marker made of parts,
// reading in 4 KiB pages and overlapping successive pages by
// len(marker)-1 bytes so a marker split across a page boundary is still
// found. It returns the file offset of the marker's first byte, or, if
// after is true, the offset immediately following the marker's last byte.
func FindInStream(r io.ReaderAt, size int64, parts [3]string, after bool) (int64, error) {
	op := "marker.FindInStream"
	needle := []byte(reconstruct(parts))
	overlap := int64(len(needle) - 1)
	if overlap < 0 {
		overlap = 0
	}

	buf := make([]byte, pageSize)
	var pos int64
	for pos < size {
		readLen := pageSize
		if remaining := size - pos; remaining < int64(readLen) {
			readLen = int(remaining)
		}
		n, err := r.ReadAt(buf[:readLen], pos)
		if n == 0 && err != nil && err != io.EOF {
			return 0, wrap(op, err)
		}

		if idx := bytes.Index(buf[:n], needle); idx >= 0 {
			start := pos + int64(idx)
			if after {
				return start + int64(len(needle)), nil
			}
			return start, nil
		}

		if err == io.EOF || int64(n) < int64(readLen) {
			break
		}

		advance := int64(n) - overlap
		if advance <= 0 {
			advance = int64(n)
		}
		pos += advance
	}

	return 0, wrap(op, ErrNotFound)
}
