package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veridata/trialbridge-backend/internal/http/response"
	"github.com/veridata/trialbridge-backend/internal/services"
)

type AnchorHandler struct {
	anchorService services.AnchorService
}

func NewAnchorHandler(anchorService services.AnchorService) *AnchorHandler {
	return &AnchorHandler{anchorService: anchorService}
}

// Run triggers one anchoring pass outside the worker cadence. The run lock
// still applies, so a tick already in flight makes this a skipped no-op.
func (h *AnchorHandler) Run(c *gin.Context) {
	report, err := h.anchorService.Run(c.Request.Context())
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "report": report})
}

func (h *AnchorHandler) ListByTrial(c *gin.Context) {
	trialID, err := uuid.Parse(c.Query("trial_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	anchors, err := h.anchorService.ListByTrial(c.Request.Context(), trialID)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, gin.H{"anchors": anchors})
}
