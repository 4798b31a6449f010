package config

import (
	"context"
	"fmt"

	"github.com/radif/filestore/internal/storage"
)

// NewAdapter builds the storage adapter selected by StorageBackend.
func NewAdapter(ctx context.Context, c *Config) (*storage.Adapter, error) {
	switch c.StorageBackend {
	case "azure":
		return storage.NewAzureAdapter(c.AzureAccountName, c.StorageContainer, storage.AzureOptions{
			AccessKey:    c.AzureAccountKey,
			DirectAccess: c.StorageDirectAccess,
			ServiceURL:   c.AzureServiceURL,
		})
	case "minio":
		backend, err := storage.NewMinioBackend(c.MinioEndpoint, c.MinioAccessKey, c.MinioSecretKey, c.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return storage.NewAdapter(backend, c.StorageContainer, c.StorageDirectAccess)
	case "s3":
		backend, err := storage.NewS3Backend(ctx, storage.S3Options{
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewAdapter(backend, c.StorageContainer, c.StorageDirectAccess)
	case "memory":
		return storage.NewAdapter(storage.NewMemoryBackend(c.MountPath+"/blobs"), c.StorageContainer, c.StorageDirectAccess)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", storage.ErrConfiguration, c.StorageBackend)
	}
}
