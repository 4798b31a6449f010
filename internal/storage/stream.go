package storage

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// FileStream is a forward-only reader over a stored file. The underlying
// backend stream is opened on the first Read, so errors such as ErrNotFound
// are reported by Read rather than by Adapter.GetFileStream.
//
// A FileStream is not safe for concurrent use and cannot be rewound; open a
// new one to read the file again.
type FileStream struct {
	open   func() (io.ReadCloser, *Properties, error)
	body   io.ReadCloser
	props  *Properties
	err    error
	closed bool
}

var errStreamClosed = errors.New("storage: read on closed stream")

func newFileStream(open func() (io.ReadCloser, *Properties, error)) *FileStream {
	return &FileStream{open: open}
}

// Open forces the backend stream open and returns the open error, if any.
// Calling it is optional; Read opens the stream on demand.
func (s *FileStream) Open() error {
	if s.closed {
		return errStreamClosed
	}
	if s.body == nil && s.err == nil {
		s.body, s.props, s.err = s.open()
		s.open = nil
	}
	return s.err
}

// Properties returns what the backend reported for the blob version being
// read. It is nil until the stream has been opened successfully.
func (s *FileStream) Properties() *Properties {
	if s.err != nil {
		return nil
	}
	return s.props
}

func (s *FileStream) Read(p []byte) (int, error) {
	if err := s.Open(); err != nil {
		return 0, err
	}
	return s.body.Read(p)
}

// Close releases the backend stream. Closing an unopened stream makes no request.
func (s *FileStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

// blobSize returns the full object size of a GET response: the total from a
// "bytes a-b/total" Content-Range, or contentLength when the body is not partial.
// It returns -1 when the size cannot be known.
func blobSize(contentRange string, contentLength int64, partial bool) int64 {
	if contentRange != "" {
		if _, total, ok := strings.Cut(contentRange, "/"); ok {
			if n, err := strconv.ParseInt(total, 10, 64); err == nil {
				return n
			}
		}
		return -1
	}
	if partial {
		return -1
	}
	return contentLength
}

var _ io.ReadCloser = (*FileStream)(nil)
