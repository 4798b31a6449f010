package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is an in-memory Backend for tests and local development.
// Thread-safe for concurrent reads and writes.
type MemoryBackend struct {
	baseURL string

	mu         sync.RWMutex
	containers map[string]*memoryContainer
}

type memoryContainer struct {
	access AccessLevel
	blobs  map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

func (b memoryBlob) properties() *Properties {
	return &Properties{
		Length:       int64(len(b.data)),
		ContentType:  b.contentType,
		ETag:         b.etag,
		LastModified: b.modified,
		Metadata:     map[string]string{},
	}
}

// NewMemoryBackend creates an empty in-memory backend. baseURL is used to
// build public URLs, e.g. "http://localhost:8080/blobs".
func NewMemoryBackend(baseURL string) *MemoryBackend {
	return &MemoryBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		containers: make(map[string]*memoryContainer),
	}
}

func (m *MemoryBackend) EnsureContainer(_ context.Context, name string, access AccessLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[name]; !ok {
		m.containers[name] = &memoryContainer{access: access, blobs: make(map[string]memoryBlob)}
	}
	return nil
}

// ContainerAccess reports the access level a container was created with.
func (m *MemoryBackend) ContainerAccess(name string) (AccessLevel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[name]
	if !ok {
		return AccessPrivate, false
	}
	return c.access, true
}

func (m *MemoryBackend) PutBlob(_ context.Context, container, key string, body io.Reader, size int64, contentType string) (*BlobInfo, error) {
	// Read outside the lock; body may block.
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("body length %d does not match declared size %d", len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[container]
	if !ok {
		return nil, fmt.Errorf("container %q: %w", container, ErrNotFound)
	}
	now := time.Now().UTC()
	blob := memoryBlob{
		data:        data,
		contentType: contentType,
		etag:        fmt.Sprintf("\"%x\"", now.UnixNano()),
		modified:    now,
	}
	c.blobs[key] = blob

	return &BlobInfo{Name: key, Container: container, ETag: blob.etag, LastModified: now}, nil
}

func (m *MemoryBackend) DeleteBlob(_ context.Context, container, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[container]
	if !ok {
		return fmt.Errorf("container %q: %w", container, ErrNotFound)
	}
	if _, ok := c.blobs[key]; !ok {
		return fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	delete(c.blobs, key)
	return nil
}

func (m *MemoryBackend) BlobProperties(_ context.Context, container, key string) (*Properties, error) {
	blob, err := m.lookup(container, key)
	if err != nil {
		return nil, err
	}
	return blob.properties(), nil
}

// OpenBlob follows HTTP range semantics: an End past the last byte is clamped,
// a Start past the last byte fails with ErrRange.
func (m *MemoryBackend) OpenBlob(_ context.Context, container, key string, rng *Range) (io.ReadCloser, *Properties, error) {
	blob, err := m.lookup(container, key)
	if err != nil {
		return nil, nil, err
	}
	props := blob.properties()
	data := blob.data
	if rng != nil {
		size := int64(len(data))
		if rng.Start >= size {
			return nil, nil, fmt.Errorf("bytes=%d-%d of %d: %w", rng.Start, rng.End, size, ErrRange)
		}
		end := rng.End
		if end >= size {
			end = size - 1
		}
		data = data[rng.Start : end+1]
	}
	return io.NopCloser(bytes.NewReader(data)), props, nil
}

func (m *MemoryBackend) PublicURL(container, key string) string {
	return m.baseURL + "/" + url.PathEscape(container) + "/" + EscapeKey(key)
}

// lookup returns the blob by value; stored data is never mutated after PutBlob,
// so sharing the slice with readers is safe.
func (m *MemoryBackend) lookup(container, key string) (memoryBlob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[container]
	if !ok {
		return memoryBlob{}, fmt.Errorf("container %q: %w", container, ErrNotFound)
	}
	blob, ok := c.blobs[key]
	if !ok {
		return memoryBlob{}, fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	return blob, nil
}

var _ Backend = (*MemoryBackend)(nil)
