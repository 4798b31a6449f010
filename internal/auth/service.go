// Package auth exchanges the application master key for short-lived bearer tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radif/filestore/internal/config"
)

const tokenTTL = 24 * time.Hour

// ErrInvalidCredentials is returned when the application ID or master key does not match.
var ErrInvalidCredentials = errors.New("invalid application credentials")

// Service issues JWTs that authorize file writes for one application.
type Service struct {
	cfg *config.Config
	now func() time.Time
}

// NewService creates a new auth Service.
func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// IssueToken checks the master key and returns a signed token for appID.
func (s *Service) IssueToken(appID, masterKey string) (string, time.Time, error) {
	if appID != s.cfg.AppID ||
		subtle.ConstantTimeCompare([]byte(masterKey), []byte(s.cfg.MasterKey)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(tokenTTL)
	claims := jwt.MapClaims{
		"sub":   appID,
		"appId": appID,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
