package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain.txt", "plain.txt"},
		{"with space.txt", "with%20space.txt"},
		{"a/b", "a%2Fb"},
		{"q?x=1&y=2", "q%3Fx%3D1%26y%3D2"},
		{"tilde~under_score-dash", "tilde~under_score-dash"},
		{"plus+hash#", "plus%2Bhash%23"},
		{"日本", "%E6%97%A5%E6%9C%AC"},
		{"photo(1)!*'.jpg", "photo(1)!*'.jpg"},
		{"50% off;$@,:", "50%25%20off%3B%24%40%2C%3A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeKey(tt.in), tt.in)
	}
}

func TestPublicReadPolicy(t *testing.T) {
	var policy struct {
		Statement []struct {
			Effect   string
			Action   string
			Resource string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(publicReadPolicy("files")), &policy))
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, "Allow", policy.Statement[0].Effect)
	assert.Equal(t, "s3:GetObject", policy.Statement[0].Action)
	assert.Equal(t, "arn:aws:s3:::files/*", policy.Statement[0].Resource)
}

func TestMapMinioError(t *testing.T) {
	assert.NoError(t, mapMinioError(nil))

	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404, Message: "missing"}
	assert.ErrorIs(t, mapMinioError(notFound), ErrNotFound)

	badRange := minio.ErrorResponse{Code: "InvalidRange", StatusCode: 416}
	assert.ErrorIs(t, mapMinioError(badRange), ErrRange)

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	err := mapMinioError(denied)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrRange)
}

func TestMapS3Error(t *testing.T) {
	assert.NoError(t, mapS3Error(nil))
	assert.ErrorIs(t, mapS3Error(&types.NoSuchKey{}), ErrNotFound)
	assert.ErrorIs(t, mapS3Error(fmt.Errorf("head: %w", &types.NotFound{})), ErrNotFound)
	assert.ErrorIs(t, mapS3Error(&smithy.GenericAPIError{Code: "InvalidRange"}), ErrRange)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapS3Error(other))
}

func TestS3Backend_PublicURL(t *testing.T) {
	aws := NewS3BackendFromClient(nil, "eu-west-1", "")
	assert.Equal(t, "https://files.s3.eu-west-1.amazonaws.com/a%20b.txt", aws.PublicURL("files", "a b.txt"))

	local := NewS3BackendFromClient(nil, "us-east-1", "http://localhost:4566/")
	assert.Equal(t, "http://localhost:4566/files/a.txt", local.PublicURL("files", "a.txt"))
}

func TestHTTPRange(t *testing.T) {
	assert.Equal(t, "bytes=0-0", httpRange(&Range{Start: 0, End: 0}))
	assert.Equal(t, "bytes=10-19", httpRange(&Range{Start: 10, End: 19}))
	assert.Equal(t, int64(10), (&Range{Start: 10, End: 19}).Len())
}
