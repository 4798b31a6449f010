package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend implements Backend using a MinIO (or any S3-compatible) server.
// To switch to another S3-compatible provider, change the endpoint and credentials;
// no code changes are needed.
type MinioBackend struct {
	client     *minio.Client
	publicBase string
}

// NewMinioBackend creates a MinIO client. It does not touch the bucket;
// containers are ensured on write.
func NewMinioBackend(endpoint, accessKey, secretKey string, useSSL bool) (*MinioBackend, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", ErrConfiguration)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create minio client: %w", ErrConfiguration, err)
	}

	return &MinioBackend{
		client:     client,
		publicBase: strings.TrimRight(client.EndpointURL().String(), "/"),
	}, nil
}

// EnsureContainer creates the bucket if missing. Public buckets get an
// anonymous-read policy on every call.
func (s *MinioBackend) EnsureContainer(ctx context.Context, name string, access AccessLevel) error {
	exists, err := s.client.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
			resp := minio.ToErrorResponse(err)
			if resp.Code != "BucketAlreadyOwnedByYou" && resp.Code != "BucketAlreadyExists" {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		} else {
			log.Printf("storage: created bucket %q (access=%s)", name, access)
		}
	}

	if access == AccessBlob {
		if err := s.client.SetBucketPolicy(ctx, name, publicReadPolicy(name)); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return nil
}

// PutBlob streams body to MinIO under key. A size of -1 makes MinIO buffer
// the body into multipart chunks.
func (s *MinioBackend) PutBlob(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*BlobInfo, error) {
	info, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapMinioError(err)
	}
	return &BlobInfo{
		Name:         key,
		Container:    bucket,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		VersionID:    info.VersionID,
	}, nil
}

// DeleteBlob stats the object before removing it, since S3 deletes of
// missing keys succeed silently.
func (s *MinioBackend) DeleteBlob(ctx context.Context, bucket, key string) error {
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return mapMinioError(err)
	}
	return mapMinioError(s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (s *MinioBackend) BlobProperties(ctx context.Context, bucket, key string) (*Properties, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	props := &Properties{
		Length:       info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		Metadata:     make(map[string]string, len(info.UserMetadata)+1),
	}
	for k, v := range info.UserMetadata {
		props.Metadata[k] = v
	}
	if info.StorageClass != "" {
		props.Metadata["storageClass"] = info.StorageClass
	}
	return props, nil
}

// OpenBlob returns the object handle. minio-go defers the GET until the object
// is first used; Stat forces it so open errors surface here. Reads are mapped too.
func (s *MinioBackend) OpenBlob(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, *Properties, error) {
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrRange, err)
		}
	}
	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, nil, mapMinioError(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, mapMinioError(err)
	}
	props := &Properties{
		Length:       blobSize(info.Metadata.Get("Content-Range"), info.Size, rng != nil),
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}
	return &minioReader{obj: obj}, props, nil
}

// PublicURL returns the path-style URL of the object on the MinIO endpoint.
func (s *MinioBackend) PublicURL(bucket, key string) string {
	return s.publicBase + "/" + bucket + "/" + EscapeKey(key)
}

type minioReader struct {
	obj *minio.Object
}

func (r *minioReader) Read(p []byte) (int, error) {
	n, err := r.obj.Read(p)
	if err != nil && err != io.EOF {
		return n, mapMinioError(err)
	}
	return n, err
}

func (r *minioReader) Close() error { return r.obj.Close() }

func mapMinioError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket", resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case resp.Code == "InvalidRange", resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return fmt.Errorf("%w: %w", ErrRange, err)
	}
	return err
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}

var _ Backend = (*MinioBackend)(nil)
