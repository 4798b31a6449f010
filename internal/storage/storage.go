// Package storage persists opaque files to a blob-storage backend and reads them back by name.
// Swap backends by changing the concrete Backend injected at startup: Azure Blob Storage,
// MinIO (or any S3-compatible provider), AWS S3, or the in-memory store used by tests.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrConfiguration is returned when a required construction parameter is missing or invalid.
	ErrConfiguration = errors.New("storage: invalid configuration")
	// ErrContainerCreation is returned when the container cannot be ensured before a write.
	ErrContainerCreation = errors.New("storage: container creation failed")
	// ErrUpload is returned when writing a blob fails.
	ErrUpload = errors.New("storage: upload failed")
	// ErrNotFound is returned when a blob (or its container) does not exist.
	ErrNotFound = errors.New("storage: file not found")
	// ErrDelete is returned when deleting an existing blob fails.
	ErrDelete = errors.New("storage: delete failed")
	// ErrMetadata is returned when blob properties cannot be fetched.
	ErrMetadata = errors.New("storage: metadata fetch failed")
	// ErrStreamOpen is returned from the first Read of a FileStream whose backend stream failed to open.
	ErrStreamOpen = errors.New("storage: stream open failed")
	// ErrRange is returned when a requested byte range cannot be satisfied.
	ErrRange = errors.New("storage: invalid byte range")
)

// AccessLevel is the anonymous access policy applied to a container.
type AccessLevel int

const (
	// AccessPrivate allows no anonymous reads.
	AccessPrivate AccessLevel = iota
	// AccessBlob allows anonymous reads of individual blobs, but not listing.
	AccessBlob
)

func (a AccessLevel) String() string {
	if a == AccessBlob {
		return "blob"
	}
	return "private"
}

// Range is an inclusive byte range within a blob.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// BlobInfo is the backend's acknowledgment of a successful write.
type BlobInfo struct {
	Name         string    `json:"name"`
	Container    string    `json:"container"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
	VersionID    string    `json:"versionId,omitempty"`
}

// Properties is the metadata reported by the backend for a blob.
// Metadata carries user-defined and backend-specific fields verbatim.
type Properties struct {
	Length       int64             `json:"length"`
	ContentType  string            `json:"contentType,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"lastModified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Backend is the capability a blob-storage service must expose to back an Adapter.
// Implementations return errors satisfying errors.Is(err, ErrNotFound) for missing keys and
// errors.Is(err, ErrRange) for unsatisfiable ranges; every other error is passed through.
type Backend interface {
	// EnsureContainer creates the container if it does not exist. It must be idempotent.
	EnsureContainer(ctx context.Context, name string, access AccessLevel) error
	// PutBlob writes body under key, overwriting any existing blob. size is -1 when unknown.
	PutBlob(ctx context.Context, container, key string, body io.Reader, size int64, contentType string) (*BlobInfo, error)
	// DeleteBlob removes the blob at key.
	DeleteBlob(ctx context.Context, container, key string) error
	// BlobProperties fetches metadata for the blob at key.
	BlobProperties(ctx context.Context, container, key string) (*Properties, error)
	// OpenBlob opens a read stream for the blob, limited to rng when non-nil. It
	// also returns the properties of the blob version being read. Length is the
	// full blob size, or -1 when the backend does not report it.
	OpenBlob(ctx context.Context, container, key string, rng *Range) (io.ReadCloser, *Properties, error)
	// PublicURL returns the canonical anonymous URL of the blob.
	PublicURL(container, key string) string
}
