package handlers

import (
	"errors"
	"net/http"
	"strings"

	"consultly/config"
	"consultly/middleware"
	"consultly/models"
	"consultly/services/wallet"
	"consultly/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// WalletHandler exposes balance reads, top-ups and withdrawals. All balance
// writes go through the ledger.
type WalletHandler struct {
	Ledger wallet.Ledger
	Logger *zap.Logger
}

func NewWalletHandler(ledger wallet.Ledger, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{Ledger: ledger, Logger: logger}
}

func ownerFromContext(c *gin.Context) models.AccountRef {
	return models.AccountRef{
		OwnerID:   c.GetString(middleware.CtxSubjectID),
		OwnerKind: c.GetString(middleware.CtxRole),
	}
}

// BalanceHandler returns the authenticated owner's current balance.
func (h *WalletHandler) BalanceHandler(c *gin.Context) {
	owner := ownerFromContext(c)

	balance, err := h.Ledger.Balance(owner)
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, "failed to fetch balance", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance, "currency": config.AppConfig.Currency})
}

// TransactionsHandler lists the authenticated owner's ledger entries.
func (h *WalletHandler) TransactionsHandler(c *gin.Context) {
	owner := ownerFromContext(c)

	txns, err := h.Ledger.Transactions(owner, 100)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to list transactions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// TopUpHandler creates a Stripe payment intent for a wallet top-up. The
// wallet is credited only after confirmation.
func (h *WalletHandler) TopUpHandler(c *gin.Context) {
	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = config.AppConfig.Currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(req.Amount * 100)),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.AddMetadata("ownerId", c.GetString(middleware.CtxSubjectID))
	params.AddMetadata("purpose", "wallet_topup")

	pi, err := paymentintent.New(params)
	if err != nil {
		h.Logger.Error("payment intent creation failed", zap.Error(err))
		utils.JSONError(c, http.StatusBadGateway, "failed to create payment intent", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentIntentId": pi.ID,
		"clientSecret":    pi.ClientSecret,
	})
}

// ConfirmTopUpHandler credits the wallet after a payment intent succeeded.
func (h *WalletHandler) ConfirmTopUpHandler(c *gin.Context) {
	var req models.ConfirmTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	pi, err := paymentintent.Get(req.PaymentIntentID, nil)
	if err != nil {
		utils.JSONError(c, http.StatusBadGateway, "failed to verify payment", err.Error())
		return
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		utils.JSONError(c, http.StatusConflict, "payment not completed", string(pi.Status))
		return
	}

	owner := ownerFromContext(c)
	txn, err := h.Ledger.Credit(c.Request.Context(), owner, req.Amount, models.TxnTypeCredit, "wallet top-up "+pi.ID)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to credit wallet", err.Error())
		return
	}
	c.JSON(http.StatusOK, txn)
}

// WithdrawHandler debits a provider's wallet for payout.
func (h *WalletHandler) WithdrawHandler(c *gin.Context) {
	var req models.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	owner := ownerFromContext(c)
	txn, err := h.Ledger.Debit(c.Request.Context(), owner, req.Amount, models.TxnTypeWithdrawal, "withdrawal request")
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			utils.JSONError(c, http.StatusConflict, "insufficient funds", err.Error())
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "failed to withdraw", err.Error())
		return
	}
	c.JSON(http.StatusOK, txn)
}
