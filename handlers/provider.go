package handlers

import (
	"net/http"

	providerRepo "consultly/database/repository/provider"
	"consultly/middleware"
	"consultly/models"
	"consultly/services/rate"
	"consultly/utils"

	"github.com/gin-gonic/gin"
)

// ProviderHandler exposes rate management. Provider registration and KYC are
// external; this service only needs provider rates.
type ProviderHandler struct {
	Repo providerRepo.ProviderRepository
}

func NewProviderHandler(repo providerRepo.ProviderRepository) *ProviderHandler {
	return &ProviderHandler{Repo: repo}
}

// GetRatesHandler returns the resolved canonical per-minute rates, hiding
// the legacy field mess from clients.
func (h *ProviderHandler) GetRatesHandler(c *gin.Context) {
	id := c.Param("id")

	provider, err := h.Repo.GetByID(id)
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, "provider not found", err.Error())
		return
	}

	resolved := make(map[string]float64, 3)
	for _, t := range []string{models.TypeChat, models.TypeAudio, models.TypeVideo} {
		r, err := rate.Resolve(provider, t)
		if err != nil {
			r = 0
		}
		resolved[t] = r
	}
	c.JSON(http.StatusOK, gin.H{"providerId": id, "rates": resolved})
}

// UpdateRatesHandler writes the canonical per-minute rate fields.
func (h *ProviderHandler) UpdateRatesHandler(c *gin.Context) {
	id := c.Param("id")
	if subject := c.GetString(middleware.CtxSubjectID); subject != "" && subject != id {
		utils.JSONError(c, http.StatusForbidden, "cannot update another provider's rates", "")
		return
	}

	var req models.UpdateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	if req.Chat < 0 || req.Audio < 0 || req.Video < 0 {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", "rates must be non-negative")
		return
	}

	if err := h.Repo.UpdateCanonicalRates(id, req.Chat, req.Audio, req.Video); err != nil {
		utils.JSONError(c, http.StatusNotFound, "failed to update rates", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
