package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondMapped translates the error taxonomy to HTTP statuses.
func RespondMapped(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, apperrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperrors.ErrConcurrency):
		RespondError(c, http.StatusConflict, "concurrency_error", err)
	case errors.Is(err, apperrors.ErrChainIntegrity):
		RespondError(c, http.StatusInternalServerError, "chain_integrity_error", err)
	case errors.Is(err, apperrors.ErrExternalLedger):
		RespondError(c, http.StatusBadGateway, "external_ledger_error", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
