package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/filestore/internal/config"
)

func newTestService() *Service {
	return NewService(&config.Config{AppID: "myapp", MasterKey: "master", JWTSecret: "secret"})
}

func TestService_IssueToken(t *testing.T) {
	svc := newTestService()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	token, expiresAt, err := svc.IssueToken("myapp", "master")
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(tokenTTL), expiresAt)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return fixed }))
	require.NoError(t, err)
	assert.Equal(t, "myapp", claims["appId"])

	_, _, err = svc.IssueToken("myapp", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.IssueToken("otherapp", "master")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHandler_IssueToken(t *testing.T) {
	h := NewHandler(newTestService())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"applicationId":"myapp","masterKey":"master"}`, http.StatusOK},
		{"bad key", `{"applicationId":"myapp","masterKey":"nope"}`, http.StatusUnauthorized},
		{"missing", `{"applicationId":"myapp"}`, http.StatusBadRequest},
		{"garbage", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.IssueToken(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				var env struct {
					Data tokenData `json:"data"`
				}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
				assert.NotEmpty(t, env.Data.Token)
			}
		})
	}
}
