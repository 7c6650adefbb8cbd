package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/internal/service"
)

type AuthHandler struct {
	issuer   service.OTPIssuer
	verifier service.OTPVerifier
}

func NewAuthHandler(issuer service.OTPIssuer, verifier service.OTPVerifier) *AuthHandler {
	return &AuthHandler{issuer: issuer, verifier: verifier}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}
	response.OK(w, r, h.issuer.RequestSignupOTP(r.Context(), &req))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}
	response.OK(w, r, h.issuer.RequestLoginOTP(r.Context(), &req))
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.CodeValidationError, "Invalid JSON body")
		return
	}
	response.OK(w, r, h.verifier.Verify(r.Context(), &req))
}
