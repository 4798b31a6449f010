package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/radif/filestore/internal/response"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type tokenRequest struct {
	ApplicationID string `json:"applicationId" example:"myapp"`
	MasterKey     string `json:"masterKey"     example:"change_me_in_production"`
}

type tokenData struct {
	Token     string    `json:"token"     example:"eyJhbGci..."`
	ExpiresAt time.Time `json:"expiresAt" example:"2026-02-27T14:48:34Z"`
}

// IssueToken godoc
//
//	@Summary		Issue token
//	@Description	Exchange the application master key for a 24-hour bearer token that authorizes uploads and deletes.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		tokenRequest	true	"Application credentials"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Router			/auth/token [post]
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.ApplicationID == "" || req.MasterKey == "" {
		response.BadRequest(w, "applicationId and masterKey are required")
		return
	}

	token, expiresAt, err := h.svc.IssueToken(req.ApplicationID, req.MasterKey)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, "invalid application credentials")
		return
	}
	if err != nil {
		log.Printf("auth: issue token: %v", err)
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token, ExpiresAt: expiresAt})
}
