package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Adapter stores files in a single container of a Backend.
// It is immutable after construction and safe for concurrent use.
type Adapter struct {
	backend      Backend
	container    string
	directAccess bool
}

// Location carries the request-scoped values used to build proxied file URLs.
type Location struct {
	// MountPath is the public base URL of the file-serving API, e.g. "https://api.example.com/api/v1".
	MountPath     string
	ApplicationID string
}

// NewAdapter binds backend to container. No network call is made.
func NewAdapter(backend Backend, container string, directAccess bool) (*Adapter, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrConfiguration)
	}
	if container == "" {
		return nil, fmt.Errorf("%w: container name is required", ErrConfiguration)
	}
	return &Adapter{
		backend:      backend,
		container:    container,
		directAccess: directAccess,
	}, nil
}

// Container returns the configured container name.
func (a *Adapter) Container() string { return a.container }

// DirectAccess reports whether files are served straight from the backend's public URL.
func (a *Adapter) DirectAccess() bool { return a.directAccess }

// CreateFile ensures the container exists and uploads data under filename,
// overwriting any existing file. size is the exact byte count of data, or -1 if unknown.
//
// The container check runs on every call so that externally changed access
// policies are reapplied.
func (a *Adapter) CreateFile(ctx context.Context, filename string, data io.Reader, size int64, contentType string) (*BlobInfo, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrConfiguration)
	}

	access := AccessPrivate
	if a.directAccess {
		access = AccessBlob
	}
	if err := a.backend.EnsureContainer(ctx, a.container, access); err != nil {
		return nil, fmt.Errorf("ensure container %q: %w: %w", a.container, ErrContainerCreation, err)
	}

	info, err := a.backend.PutBlob(ctx, a.container, filename, data, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload %q: %w: %w", filename, ErrUpload, err)
	}
	return info, nil
}

// DeleteFile removes filename from the container.
func (a *Adapter) DeleteFile(ctx context.Context, filename string) error {
	if err := a.backend.DeleteBlob(ctx, a.container, filename); err != nil {
		return classify("delete", filename, ErrDelete, err)
	}
	return nil
}

// GetFileProperties returns backend metadata for filename.
func (a *Adapter) GetFileProperties(ctx context.Context, filename string) (*Properties, error) {
	props, err := a.backend.BlobProperties(ctx, a.container, filename)
	if err != nil {
		return nil, classify("get properties of", filename, ErrMetadata, err)
	}
	return props, nil
}

// GetFileStream returns a lazily opened stream over filename, limited to rng when non-nil.
// The backend request is made on the first Read; open failures surface there.
// The returned error is only set for a range that can never be valid.
func (a *Adapter) GetFileStream(ctx context.Context, filename string, rng *Range) (*FileStream, error) {
	if rng != nil && (rng.Start < 0 || rng.End < rng.Start) {
		return nil, fmt.Errorf("stream %q: %w: bytes=%d-%d", filename, ErrRange, rng.Start, rng.End)
	}
	return newFileStream(func() (io.ReadCloser, *Properties, error) {
		rc, props, err := a.backend.OpenBlob(ctx, a.container, filename, rng)
		if err != nil {
			return nil, nil, classify("stream", filename, ErrStreamOpen, err)
		}
		return rc, props, nil
	}), nil
}

// GetFileLocation returns the URL clients should use to fetch filename. It performs no I/O.
func (a *Adapter) GetFileLocation(loc Location, filename string) string {
	if a.directAccess {
		return a.backend.PublicURL(a.container, filename)
	}
	return loc.MountPath + "/files/" + loc.ApplicationID + "/" + EscapeKey(filename)
}

// classify wraps a backend error with the operation's error kind unless the
// backend already reported a not-found or range condition.
func classify(op, key string, kind, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRange) {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	return fmt.Errorf("%s %q: %w: %w", op, key, kind, err)
}
