package handlers

import (
	"net/http"

	"consultly/middleware"
	"consultly/models"
	"consultly/services/consultation"
	"consultly/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConsultationHandler exposes the lifecycle events delivered by the
// real-time transport. The handler knows nothing about sockets or WebRTC;
// it only relays semantic events into the state machine.
type ConsultationHandler struct {
	Service consultation.ConsultationService
	Logger  *zap.Logger
}

func NewConsultationHandler(svc consultation.ConsultationService, logger *zap.Logger) *ConsultationHandler {
	return &ConsultationHandler{Service: svc, Logger: logger}
}

// CreateHandler opens a new pending consultation.
func (h *ConsultationHandler) CreateHandler(c *gin.Context) {
	var req models.CreateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	created, err := h.Service.Create(c.Request.Context(), req)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "failed to create consultation", err.Error())
		return
	}
	c.JSON(http.StatusCreated, created)
}

// AcceptHandler records acceptance by whichever party the token belongs to.
func (h *ConsultationHandler) AcceptHandler(c *gin.Context) {
	id := c.Param("id")
	role := c.GetString(middleware.CtxRole)

	var (
		updated *models.Consultation
		err     error
	)
	if role == models.OwnerKindProvider {
		updated, err = h.Service.ProviderAccepted(c.Request.Context(), id)
	} else {
		updated, err = h.Service.ClientAccepted(c.Request.Context(), id)
	}
	if err != nil {
		utils.JSONError(c, http.StatusConflict, "failed to accept consultation", err.Error())
		return
	}
	c.JSON(http.StatusOK, updated)
}

// EndHandler terminates a consultation on explicit hangup. Billing outcome is
// never surfaced as a request failure: the call ends promptly regardless.
func (h *ConsultationHandler) EndHandler(c *gin.Context) {
	id := c.Param("id")

	reason := models.EndReasonUserEnded
	if c.GetString(middleware.CtxRole) == models.OwnerKindProvider {
		reason = models.EndReasonProviderEnded
	}

	ended, err := h.Service.End(c.Request.Context(), id, reason)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to end consultation", err.Error())
		return
	}
	c.JSON(http.StatusOK, ended)
}

// ConnectionLostHandler terminates a consultation after transport failure.
func (h *ConsultationHandler) ConnectionLostHandler(c *gin.Context) {
	id := c.Param("id")

	ended, err := h.Service.ConnectionLost(c.Request.Context(), id)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to close consultation", err.Error())
		return
	}
	c.JSON(http.StatusOK, ended)
}

// GetHandler fetches one consultation.
func (h *ConsultationHandler) GetHandler(c *gin.Context) {
	id := c.Param("id")

	found, err := h.Service.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, "consultation not found", err.Error())
		return
	}
	c.JSON(http.StatusOK, found)
}

// ListHandler lists the authenticated subject's consultations.
func (h *ConsultationHandler) ListHandler(c *gin.Context) {
	subject := c.GetString(middleware.CtxSubjectID)
	status := c.Query("status")

	var (
		list []models.Consultation
		err  error
	)
	if c.GetString(middleware.CtxRole) == models.OwnerKindProvider {
		list, err = h.Service.ListByProvider(c.Request.Context(), subject, status)
	} else {
		list, err = h.Service.ListByClient(c.Request.Context(), subject, status)
	}
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to list consultations", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"consultations": list})
}
