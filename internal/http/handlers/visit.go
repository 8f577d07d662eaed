package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/veridata/trialbridge-backend/internal/domain"
	"github.com/veridata/trialbridge-backend/internal/http/response"
	"github.com/veridata/trialbridge-backend/internal/services"
)

// VisitHandler is the surface the data-entry collaborator calls when a
// visit is locked: append the leaf, and query a patient's latest chain
// hash.
type VisitHandler struct {
	chainService services.ChainService
}

func NewVisitHandler(chainService services.ChainService) *VisitHandler {
	return &VisitHandler{chainService: chainService}
}

type appendVisitRequest struct {
	PatientID uuid.UUID               `json:"patient_id" binding:"required"`
	VisitID   uuid.UUID               `json:"visit_id" binding:"required"`
	TrialID   uuid.UUID               `json:"trial_id" binding:"required"`
	Values    []types.FieldValueInput `json:"values" binding:"required"`
}

func (h *VisitHandler) AppendVisit(c *gin.Context) {
	var req appendVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	leaf, err := h.chainService.AppendVisit(c.Request.Context(), req.PatientID, req.VisitID, req.TrialID, req.Values)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"leaf": leaf})
}

func (h *VisitHandler) LatestHash(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	hash, err := h.chainService.LatestHash(c.Request.Context(), patientID)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, gin.H{"latest_hash": hash})
}
