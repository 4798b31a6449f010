package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureOptions configures an Azure Blob Storage backend.
type AzureOptions struct {
	// AccessKey is the base64 shared account key. When empty the client is anonymous,
	// which only works for reads against public containers.
	AccessKey string
	// DirectAccess makes the container publicly readable and GetFileLocation return blob URLs.
	DirectAccess bool
	// ServiceURL overrides the blob endpoint, e.g. "http://127.0.0.1:10000/devstoreaccount1/" for Azurite.
	ServiceURL string
}

// azureAPI is the subset of *azblob.Client used by AzureBackend.
type azureAPI interface {
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	GetBlobProperties(ctx context.Context, containerName, blobName string) (blob.GetPropertiesResponse, error)
}

// azureClient adds the properties call, which azblob only exposes on blob clients.
type azureClient struct {
	*azblob.Client
}

func (c azureClient) GetBlobProperties(ctx context.Context, containerName, blobName string) (blob.GetPropertiesResponse, error) {
	return c.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName).GetProperties(ctx, nil)
}

// AzureBackend implements Backend using Azure Blob Storage block blobs.
type AzureBackend struct {
	client     azureAPI
	account    string
	serviceURL string
}

// NewAzureBackend creates an Azure backend for account. The SDK client is
// created locally; no request is sent until the first operation.
func NewAzureBackend(account string, opts AzureOptions) (*AzureBackend, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: azure account name is required", ErrConfiguration)
	}

	serviceURL := opts.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}

	var (
		client *azblob.Client
		err    error
	)
	if opts.AccessKey == "" {
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	} else {
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(account, opts.AccessKey)
		if err != nil {
			return nil, fmt.Errorf("%w: azure shared key: %w", ErrConfiguration, err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create azure client: %w", ErrConfiguration, err)
	}

	return newAzureBackend(azureClient{client}, account, serviceURL), nil
}

func newAzureBackend(client azureAPI, account, serviceURL string) *AzureBackend {
	return &AzureBackend{
		client:     client,
		account:    account,
		serviceURL: strings.TrimRight(serviceURL, "/"),
	}
}

// NewAzureAdapter returns an Adapter storing files in container of the given Azure account.
func NewAzureAdapter(account, containerName string, opts AzureOptions) (*Adapter, error) {
	if containerName == "" {
		return nil, fmt.Errorf("%w: container name is required", ErrConfiguration)
	}
	backend, err := NewAzureBackend(account, opts)
	if err != nil {
		return nil, err
	}
	return NewAdapter(backend, containerName, opts.DirectAccess)
}

// EnsureContainer creates the container. An existing container is left as is,
// including its access policy.
func (b *AzureBackend) EnsureContainer(ctx context.Context, name string, access AccessLevel) error {
	opts := &azblob.CreateContainerOptions{}
	if access == AccessBlob {
		opts.Access = to.Ptr(container.PublicAccessTypeBlob)
	}
	_, err := b.client.CreateContainer(ctx, name, opts)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

func (b *AzureBackend) PutBlob(ctx context.Context, containerName, key string, body io.Reader, size int64, contentType string) (*BlobInfo, error) {
	if size >= 0 {
		body = &sizedReader{r: body, n: size}
	}
	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}

	resp, err := b.client.UploadStream(ctx, containerName, key, body, opts)
	if err != nil {
		return nil, mapAzureError(err)
	}

	info := &BlobInfo{Name: key, Container: containerName}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	if resp.VersionID != nil {
		info.VersionID = *resp.VersionID
	}
	return info, nil
}

func (b *AzureBackend) DeleteBlob(ctx context.Context, containerName, key string) error {
	_, err := b.client.DeleteBlob(ctx, containerName, key, nil)
	return mapAzureError(err)
}

func (b *AzureBackend) BlobProperties(ctx context.Context, containerName, key string) (*Properties, error) {
	resp, err := b.client.GetBlobProperties(ctx, containerName, key)
	if err != nil {
		return nil, mapAzureError(err)
	}

	props := &Properties{Metadata: make(map[string]string)}
	if resp.ContentLength != nil {
		props.Length = *resp.ContentLength
	}
	if resp.ContentType != nil {
		props.ContentType = *resp.ContentType
	}
	if resp.ETag != nil {
		props.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		props.LastModified = *resp.LastModified
	}
	for k, v := range resp.Metadata {
		if v != nil {
			props.Metadata[k] = *v
		}
	}
	if resp.BlobType != nil {
		props.Metadata["blobType"] = string(*resp.BlobType)
	}
	if resp.AccessTier != nil {
		props.Metadata["accessTier"] = *resp.AccessTier
	}
	if resp.VersionID != nil {
		props.Metadata["versionId"] = *resp.VersionID
	}
	return props, nil
}

func (b *AzureBackend) OpenBlob(ctx context.Context, containerName, key string, rng *Range) (io.ReadCloser, *Properties, error) {
	opts := &azblob.DownloadStreamOptions{}
	if rng != nil {
		opts.Range = azblob.HTTPRange{Offset: rng.Start, Count: rng.Len()}
	}
	resp, err := b.client.DownloadStream(ctx, containerName, key, opts)
	if err != nil {
		return nil, nil, mapAzureError(err)
	}

	var contentRange string
	var contentLength int64 = -1
	if resp.ContentRange != nil {
		contentRange = *resp.ContentRange
	}
	if resp.ContentLength != nil {
		contentLength = *resp.ContentLength
	}
	props := &Properties{Length: blobSize(contentRange, contentLength, rng != nil)}
	if resp.ContentType != nil {
		props.ContentType = *resp.ContentType
	}
	if resp.ETag != nil {
		props.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		props.LastModified = *resp.LastModified
	}
	return resp.Body, props, nil
}

func (b *AzureBackend) PublicURL(containerName, key string) string {
	return b.serviceURL + "/" + containerName + "/" + EscapeKey(key)
}

// sizedReader reads exactly n bytes from r. Bytes past n are not read, and a
// body that ends early fails with io.ErrUnexpectedEOF instead of being stored short.
type sizedReader struct {
	r io.Reader
	n int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	if s.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.n {
		p = p[:s.n]
	}
	n, err := s.r.Read(p)
	s.n -= int64(n)
	if err == io.EOF {
		if s.n > 0 {
			return n, io.ErrUnexpectedEOF
		}
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

// mapAzureError tags not-found and invalid-range responses with the storage
// sentinels and passes everything else through.
func mapAzureError(err error) error {
	if err == nil {
		return nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if bloberror.HasCode(err, bloberror.InvalidRange) {
		return fmt.Errorf("%w: %w", ErrRange, err)
	}
	// HEAD responses carry no body, so the error code may be missing.
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusRequestedRangeNotSatisfiable:
			return fmt.Errorf("%w: %w", ErrRange, err)
		}
	}
	return err
}

var _ Backend = (*AzureBackend)(nil)
