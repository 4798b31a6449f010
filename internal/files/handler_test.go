package files

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/filestore/internal/middleware"
	"github.com/radif/filestore/internal/storage"
)

const (
	testSecret = "secret"
	testApp    = "myapp"
	testMount  = "http://files.test/api/v1"
)

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T, directAccess bool, maxUpload int64) *testServer {
	t.Helper()
	store, err := storage.NewAdapter(storage.NewMemoryBackend("http://blobs.test"), "files", directAccess)
	require.NoError(t, err)

	h := NewHandler(store, testApp, testMount, maxUpload)
	r := chi.NewRouter()
	r.Use(middleware.EscapedPath)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/files", h.Routes(middleware.RequireAuth(testSecret)))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, token: signToken(t, testApp)}
}

func signToken(t *testing.T, appID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"appId": appID,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token, body string, header map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+"/api/v1/files/"+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeData(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	env := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestUpload_Auth(t *testing.T) {
	s := newTestServer(t, false, 1<<20)

	resp := s.do(t, http.MethodPost, "myapp/a.txt", "", "hi", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "myapp/a.txt", signToken(t, "otherapp"), "hi", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "otherapp/a.txt", s.token, "hi", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadAndDownload(t *testing.T) {
	s := newTestServer(t, false, 1<<20)

	resp := s.do(t, http.MethodPost, "myapp/hello.txt", s.token, "hello, world", map[string]string{"Content-Type": "text/plain"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created uploadData
	decodeData(t, resp, &created)
	assert.Equal(t, "hello.txt", created.Name)
	assert.Equal(t, testMount+"/files/myapp/hello.txt", created.URL)

	resp = s.do(t, http.MethodGet, "myapp/hello.txt", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "12", resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.NotEmpty(t, resp.Header.Get("ETag"))
	assert.Equal(t, "hello, world", readBody(t, resp))

	resp = s.do(t, http.MethodHead, "myapp/hello.txt", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(12), resp.ContentLength)
}

func TestDownload_Range(t *testing.T) {
	s := newTestServer(t, false, 1<<20)
	resp := s.do(t, http.MethodPost, "myapp/digits", s.token, "0123456789", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		header       string
		status       int
		body         string
		contentRange string
	}{
		{"bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"bytes=7-", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"bytes=8-100", http.StatusPartialContent, "89", "bytes 8-9/10"},
		{"bytes=0-1,4-5", http.StatusOK, "0123456789", ""},
		{"bytes=10-12", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"bytes=5-2", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, "myapp/digits", "", "", map[string]string{"Range": tt.header})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.contentRange, resp.Header.Get("Content-Range"))
			if tt.body != "" {
				assert.Equal(t, tt.body, readBody(t, resp))
			}
		})
	}
}

func TestDelete(t *testing.T) {
	s := newTestServer(t, false, 1<<20)
	resp := s.do(t, http.MethodPost, "myapp/tmp.bin", s.token, "x", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "myapp/tmp.bin", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "myapp/tmp.bin", s.token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "myapp/tmp.bin", s.token, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "myapp/tmp.bin", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEscapedFilename(t *testing.T) {
	s := newTestServer(t, false, 1<<20)
	name := storage.EscapeKey("photos/summer trip.jpg")

	resp := s.do(t, http.MethodPost, "myapp/"+name, s.token, "jpeg bytes", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created uploadData
	decodeData(t, resp, &created)
	assert.Equal(t, "photos/summer trip.jpg", created.Name)
	assert.Equal(t, testMount+"/files/myapp/photos%2Fsummer%20trip.jpg", created.URL)
	assert.Equal(t, "image/jpeg", mustProps(t, s, name).Header.Get("Content-Type"))

	resp = s.do(t, http.MethodGet, "myapp/"+name, "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg bytes", readBody(t, resp))
}

func mustProps(t *testing.T, s *testServer, name string) *http.Response {
	t.Helper()
	resp := s.do(t, http.MethodHead, "myapp/"+name, "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

func TestLocation(t *testing.T) {
	proxied := newTestServer(t, false, 1<<20)
	resp := proxied.do(t, http.MethodGet, "myapp/a%20b.txt/location", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loc locationData
	decodeData(t, resp, &loc)
	assert.Equal(t, testMount+"/files/myapp/a%20b.txt", loc.URL)

	direct := newTestServer(t, true, 1<<20)
	resp = direct.do(t, http.MethodGet, "myapp/a%20b.txt/location", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &loc)
	assert.Equal(t, "http://blobs.test/files/a%20b.txt", loc.URL)
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t, false, 8)

	resp := s.do(t, http.MethodPost, "myapp/big", s.token, "more than eight bytes", nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "myapp/big", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// overwritingBackend replaces the blob right after its properties are read,
// simulating a concurrent upload between the HEAD and GET backend calls.
type overwritingBackend struct {
	*storage.MemoryBackend
	replacement string
}

func (b *overwritingBackend) BlobProperties(ctx context.Context, container, key string) (*storage.Properties, error) {
	props, err := b.MemoryBackend.BlobProperties(ctx, container, key)
	if err != nil {
		return nil, err
	}
	_, err = b.PutBlob(ctx, container, key, strings.NewReader(b.replacement), int64(len(b.replacement)), "text/csv")
	return props, err
}

func TestDownload_OverwrittenBetweenCalls(t *testing.T) {
	mem := storage.NewMemoryBackend("http://blobs.test")
	ctx := context.Background()
	require.NoError(t, mem.EnsureContainer(ctx, "files", storage.AccessPrivate))
	_, err := mem.PutBlob(ctx, "files", "data.csv", strings.NewReader("old"), 3, "text/plain")
	require.NoError(t, err)

	store, err := storage.NewAdapter(&overwritingBackend{MemoryBackend: mem, replacement: "a much longer body"}, "files", false)
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(middleware.EscapedPath)
	r.Mount("/api/v1/files", NewHandler(store, testApp, testMount, 1<<20).Routes(middleware.RequireAuth(testSecret)))
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/v1/files/myapp/data.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "18", resp.Header.Get("Content-Length"))
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, "a much longer body", readBody(t, resp))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/files/myapp/data.csv", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-1")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 0-1/18", resp.Header.Get("Content-Range"))
	assert.Equal(t, "a ", readBody(t, resp))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		want   *storage.Range
		err    error
	}{
		{"", 10, nil, nil},
		{"bytes=0-0", 10, &storage.Range{Start: 0, End: 0}, nil},
		{"bytes=3-", 10, &storage.Range{Start: 3, End: 9}, nil},
		{"bytes=-4", 10, &storage.Range{Start: 6, End: 9}, nil},
		{"bytes=-40", 10, &storage.Range{Start: 0, End: 9}, nil},
		{"bytes=2-99", 10, &storage.Range{Start: 2, End: 9}, nil},
		{"items=0-1", 10, nil, errRangeIgnored},
		{"bytes=0-1,3-4", 10, nil, errRangeIgnored},
		{"bytes=10-", 10, nil, errRangeUnsatisfiable},
		{"bytes=-0", 10, nil, errRangeUnsatisfiable},
		{"bytes=0-0", 0, nil, errRangeUnsatisfiable},
		{"bytes=x-1", 10, nil, errRangeUnsatisfiable},
		{"bytes=5", 10, nil, errRangeUnsatisfiable},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := parseRange(tt.header, tt.size)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}
