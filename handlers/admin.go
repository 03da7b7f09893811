package handlers

import (
	"net/http"

	"consultly/models"
	"consultly/services/reconciliation"
	"consultly/services/wallet"
	"consultly/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the operator-facing repair surface: transaction
// reversals and controlled settlement repairs. These are the only sanctioned
// replacements for the old habit of editing balances by hand.
type AdminHandler struct {
	Ledger  wallet.Ledger
	Sweeper *reconciliation.Sweeper
}

func NewAdminHandler(ledger wallet.Ledger, sweeper *reconciliation.Sweeper) *AdminHandler {
	return &AdminHandler{Ledger: ledger, Sweeper: sweeper}
}

// ReverseTransactionHandler appends a reversal for a completed transaction.
func (h *AdminHandler) ReverseTransactionHandler(c *gin.Context) {
	id := c.Param("id")

	var req models.ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	reversal, err := h.Ledger.Reverse(c.Request.Context(), id, req.Reason)
	if err != nil {
		utils.JSONError(c, http.StatusConflict, "failed to reverse transaction", err.Error())
		return
	}
	c.JSON(http.StatusOK, reversal)
}

// RepairConsultationHandler settles a billable consultation flagged by the
// sweep as missing its payment transaction.
func (h *AdminHandler) RepairConsultationHandler(c *gin.Context) {
	id := c.Param("id")

	if err := h.Sweeper.RepairUnsettled(c.Request.Context(), id); err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "repair failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "repaired", "consultationId": id})
}

// RunSweepHandler triggers one reconciliation pass on demand.
func (h *AdminHandler) RunSweepHandler(c *gin.Context) {
	report, err := h.Sweeper.Run(c.Request.Context())
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "sweep failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}
