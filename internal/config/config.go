// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/radif/filestore/internal/storage"
)

const insecureDefault = "change_me_in_production"

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// Application served by this instance. Files live under /files/{AppID}/.
	AppID     string
	MasterKey string
	JWTSecret string
	// MountPath is the public base URL of the API, used to build proxied file URLs.
	MountPath      string
	MaxUploadBytes int64

	// Object storage
	StorageBackend      string // azure, minio, s3 or memory
	StorageContainer    string
	StorageDirectAccess bool

	AzureAccountName string
	AzureAccountKey  string
	AzureServiceURL  string // optional, e.g. Azurite "http://127.0.0.1:10000/devstoreaccount1/"

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	return &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "development"),

		AppID:          getEnv("APP_ID", "myapp"),
		MasterKey:      getEnv("MASTER_KEY", insecureDefault),
		JWTSecret:      getEnv("JWT_SECRET", insecureDefault),
		MountPath:      getEnv("MOUNT_PATH", "http://localhost:8080/api/v1"),
		MaxUploadBytes: getEnvInt("MAX_UPLOAD_BYTES", 20<<20),

		StorageBackend:      getEnv("STORAGE_BACKEND", "azure"),
		StorageContainer:    getEnv("STORAGE_CONTAINER", "files"),
		StorageDirectAccess: getEnv("STORAGE_DIRECT_ACCESS", "false") == "true",

		AzureAccountName: getEnv("AZURE_ACCOUNT_NAME", ""),
		AzureAccountKey:  getEnv("AZURE_ACCOUNT_KEY", ""),
		AzureServiceURL:  getEnv("AZURE_SERVICE_URL", ""),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",

		S3Region:    getEnv("S3_REGION", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate rejects settings that must never reach production: the built-in
// MASTER_KEY and JWT_SECRET placeholders.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.MasterKey == insecureDefault || c.MasterKey == "" {
		return fmt.Errorf("%w: MASTER_KEY must be set in production", storage.ErrConfiguration)
	}
	if c.JWTSecret == insecureDefault || c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET must be set in production", storage.ErrConfiguration)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
