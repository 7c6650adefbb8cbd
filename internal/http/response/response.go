// Package response writes the tagged result envelope onto the wire.
// Handlers never pick HTTP status codes themselves; the stable error
// code decides.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidationError:         http.StatusBadRequest,
	domain.CodeInvalidOTP:              http.StatusBadRequest,
	domain.CodeOTPExpired:              http.StatusBadRequest,
	domain.CodeExpiredOrInvalidOTP:     http.StatusBadRequest,
	domain.CodeInvalidToken:            http.StatusUnauthorized,
	domain.CodeUserSuspended:           http.StatusForbidden,
	domain.CodeAccountInactive:         http.StatusForbidden,
	domain.CodePhoneUnverified:         http.StatusForbidden,
	domain.CodeUserNotFound:            http.StatusNotFound,
	domain.CodeJourneyNotFound:         http.StatusNotFound,
	domain.CodeEmergencyNotFound:       http.StatusNotFound,
	domain.CodeCircleMembersNotFound:   http.StatusNotFound,
	domain.CodeNotFound:                http.StatusNotFound,
	domain.CodeUserExists:              http.StatusConflict,
	domain.CodeEmergencyResolved:       http.StatusConflict,
	domain.CodeAccountLocked:           http.StatusLocked,
	domain.CodeOTPCooldown:             http.StatusTooManyRequests,
	domain.CodeLimitExceeded:           http.StatusTooManyRequests,
	domain.CodeRateLimitExceeded:       http.StatusTooManyRequests,
	domain.CodeSMSFailed:               http.StatusBadGateway,
	domain.CodeWebLinkGenerationFailed: http.StatusInternalServerError,
	domain.CodeInternalError:           http.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status. Unknown codes are
// treated as internal errors.
func StatusFor(code domain.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteResult serializes a result envelope. Successful results go out
// as 200 unless the caller passes a different status through okStatus.
func WriteResult(w http.ResponseWriter, r *http.Request, res *domain.Result, okStatus int) {
	status := okStatus
	if !res.Success && res.Error != nil {
		status = StatusFor(res.Error.Code)
	}
	writeJSON(w, r, status, res)
}

func OK(w http.ResponseWriter, r *http.Request, res *domain.Result) {
	WriteResult(w, r, res, http.StatusOK)
}

func Created(w http.ResponseWriter, r *http.Request, res *domain.Result) {
	WriteResult(w, r, res, http.StatusCreated)
}

// Error writes a bare failure envelope for handler-level rejections
// that never reach a service.
func Error(w http.ResponseWriter, r *http.Request, code domain.ErrorCode, message string) {
	WriteResult(w, r, domain.Fail(code, message, "", domain.Metadata{}), http.StatusOK)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}
