package files

import (
	"errors"
	"strconv"
	"strings"

	"github.com/radif/filestore/internal/storage"
)

var (
	// errRangeIgnored means the header is valid but not served as a range (multipart ranges).
	errRangeIgnored = errors.New("range ignored")
	// errRangeUnsatisfiable maps to 416.
	errRangeUnsatisfiable = errors.New("range not satisfiable")
)

// parseRange parses a single-range "Range: bytes=..." header against a file of
// size bytes. It returns nil for an empty header. Supported forms are
// "a-b", "a-" and the suffix form "-n". The end is clamped to the last byte.
func parseRange(header string, size int64) (*storage.Range, error) {
	if header == "" {
		return nil, nil
	}
	byteRange, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, errRangeIgnored
	}
	byteRange = strings.TrimSpace(byteRange)
	if strings.Contains(byteRange, ",") {
		return nil, errRangeIgnored
	}

	first, last, ok := strings.Cut(byteRange, "-")
	if !ok {
		return nil, errRangeUnsatisfiable
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix range: the final n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return nil, errRangeUnsatisfiable
		}
		if n > size {
			n = size
		}
		return &storage.Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, errRangeUnsatisfiable
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return nil, errRangeUnsatisfiable
		}
		if end >= size {
			end = size - 1
		}
	}
	return &storage.Range{Start: start, End: end}, nil
}
