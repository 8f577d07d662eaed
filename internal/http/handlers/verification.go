package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veridata/trialbridge-backend/internal/http/response"
	"github.com/veridata/trialbridge-backend/internal/services"
)

// VerificationHandler exposes the regulator-facing checks. Responses carry
// a definite status plus every hash/root involved, for audit display.
type VerificationHandler struct {
	verificationService services.VerificationService
}

func NewVerificationHandler(verificationService services.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

func (h *VerificationHandler) VerifyLeaf(c *gin.Context) {
	visitID, err := uuid.Parse(c.Param("visitID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	result, err := h.verificationService.VerifyLeaf(c.Request.Context(), visitID)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, result)
}

func (h *VerificationHandler) VerifyChain(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	result, err := h.verificationService.VerifyChain(c.Request.Context(), patientID)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, result)
}

func (h *VerificationHandler) VerifyAnchor(c *gin.Context) {
	anchorID, err := uuid.Parse(c.Param("anchorID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	result, err := h.verificationService.VerifyAnchor(c.Request.Context(), anchorID)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, result)
}
