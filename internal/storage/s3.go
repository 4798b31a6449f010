package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Options configures an AWS S3 backend.
type S3Options struct {
	Region string
	// Endpoint overrides the S3 endpoint (e.g. LocalStack) and switches to path-style addressing.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Backend implements Backend using AWS S3.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
	endpoint string
}

// NewS3Backend loads the default AWS configuration, overridden by opts.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", ErrConfiguration, err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: aws region is required", ErrConfiguration)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3BackendFromClient(client, cfg.Region, opts.Endpoint), nil
}

// NewS3BackendFromClient wraps an existing client. endpoint is only used for
// public URLs and may be empty for AWS.
func NewS3BackendFromClient(client *s3.Client, region, endpoint string) *S3Backend {
	return &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   region,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (b *S3Backend) EnsureContainer(ctx context.Context, name string, access AccessLevel) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if !isS3NotFound(err) {
			return fmt.Errorf("head bucket %q: %w", name, err)
		}
		in := &s3.CreateBucketInput{Bucket: aws.String(name)}
		if b.region != "us-east-1" {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(b.region),
			}
		}
		if _, err := b.client.CreateBucket(ctx, in); err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			if !errors.As(err, &owned) {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		} else {
			log.Printf("storage: created bucket %q (access=%s)", name, access)
		}
	}

	if access == AccessBlob {
		_, err := b.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: aws.String(name),
			Policy: aws.String(publicReadPolicy(name)),
		})
		if err != nil {
			return fmt.Errorf("put bucket policy: %w", err)
		}
	}
	return nil
}

// PutBlob uploads through the transfer manager so bodies of unknown size are
// split into multipart uploads.
func (b *S3Backend) PutBlob(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*BlobInfo, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := b.uploader.Upload(ctx, in)
	if err != nil {
		return nil, mapS3Error(err)
	}
	info := &BlobInfo{Name: key, Container: bucket}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	if out.VersionID != nil {
		info.VersionID = *out.VersionID
	}
	return info, nil
}

// DeleteBlob checks existence first; S3 reports success for missing keys.
func (b *S3Backend) DeleteBlob(ctx context.Context, bucket, key string) error {
	if _, err := b.head(ctx, bucket, key); err != nil {
		return err
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return mapS3Error(err)
}

func (b *S3Backend) BlobProperties(ctx context.Context, bucket, key string) (*Properties, error) {
	head, err := b.head(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	props := &Properties{
		Length:       aws.ToInt64(head.ContentLength),
		ContentType:  aws.ToString(head.ContentType),
		ETag:         aws.ToString(head.ETag),
		LastModified: aws.ToTime(head.LastModified),
		Metadata:     make(map[string]string, len(head.Metadata)+1),
	}
	for k, v := range head.Metadata {
		props.Metadata[k] = v
	}
	if head.StorageClass != "" {
		props.Metadata["storageClass"] = string(head.StorageClass)
	}
	return props, nil
}

func (b *S3Backend) OpenBlob(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, *Properties, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		in.Range = aws.String(httpRange(rng))
	}
	resp, err := b.client.GetObject(ctx, in)
	if err != nil {
		return nil, nil, mapS3Error(err)
	}
	props := &Properties{
		Length:       blobSize(aws.ToString(resp.ContentRange), aws.ToInt64(resp.ContentLength), rng != nil),
		ContentType:  aws.ToString(resp.ContentType),
		ETag:         aws.ToString(resp.ETag),
		LastModified: aws.ToTime(resp.LastModified),
	}
	return resp.Body, props, nil
}

// PublicURL returns the virtual-hosted URL on AWS, or a path-style URL on a custom endpoint.
func (b *S3Backend) PublicURL(bucket, key string) string {
	if b.endpoint != "" {
		return b.endpoint + "/" + bucket + "/" + EscapeKey(key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, b.region, EscapeKey(key))
}

func (b *S3Backend) head(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	return head, nil
}

func httpRange(rng *Range) string {
	return fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End)
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	if isS3NotFound(err) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return fmt.Errorf("%w: %w", ErrRange, err)
	}
	return err
}

var _ Backend = (*S3Backend)(nil)
