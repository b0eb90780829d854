package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contaluz/internal/domain"
)

// APIError is the error body returned for non-200 responses. Successful
// extraction returns the bare contract, which is what the operator's
// backend integration consumes.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: msg}})
}

// MapDomainError translates domain errors to HTTP status codes and error
// codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrMissingConcessionaria):
		return http.StatusBadRequest, "MISSING_CONCESSIONARIA", "concessionaria is required"
	case errors.Is(err, domain.ErrMissingUF):
		return http.StatusBadRequest, "MISSING_UF", "uf is required"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported content type; allowed: png, jpeg"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "image exceeds maximum allowed size"
	case errors.Is(err, domain.ErrUnreadableImage):
		return http.StatusBadRequest, "UNREADABLE_IMAGE", "image bytes could not be decoded"
	case errors.Is(err, domain.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", "inference engine is not available"
	case errors.Is(err, domain.ErrInferenceTimeout):
		return http.StatusGatewayTimeout, "INFERENCE_TIMEOUT", "full-image inference timed out"
	case errors.Is(err, domain.ErrInferenceFailed):
		return http.StatusBadGateway, "INFERENCE_FAILED", "full-image inference failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}
