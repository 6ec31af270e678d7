package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"studiopay/pkg/errutil"
	"studiopay/pkg/task"
	"studiopay/services/audit"
	"studiopay/services/payout"
	"studiopay/services/wallet"
	"studiopay/services/withdrawal"
)

// Handler exposes the payout engine over HTTP. Money-affecting operations
// delegate to the services; every handler reports failures through the error
// middleware.
type Handler struct {
	unlocker    *payout.Service
	wallets     *wallet.Service
	audits      *audit.Service
	withdrawals *withdrawal.Service
	enqueuer    task.Enqueuer
}

type HandlerParams struct {
	fx.In
	Unlocker    *payout.Service
	Wallets     *wallet.Service
	Audits      *audit.Service
	Withdrawals *withdrawal.Service
	Enqueuer    task.Enqueuer
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		unlocker:    p.Unlocker,
		wallets:     p.Wallets,
		audits:      p.Audits,
		withdrawals: p.Withdrawals,
		enqueuer:    p.Enqueuer,
	}
}

// CompleteProject transitions the project to COMPLETED and schedules the
// unlock as a background job. The job is safe to redeliver.
func (h *Handler) CompleteProject(c *gin.Context) {
	project, err := h.unlocker.MarkCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	t, err := payout.NewUnlockTask(project.ProjectID)
	if err != nil {
		c.Error(err)
		return
	}
	if _, err := h.enqueuer.Enqueue(t, asynq.Queue("critical")); err != nil {
		c.Error(err)
		return
	}

	zap.L().Info("project completed, unlock scheduled", zap.String("project_id", project.ProjectID))
	c.JSON(http.StatusAccepted, gin.H{
		"projectId": project.ProjectID,
		"status":    project.Status,
	})
}

// UnlockProject runs the unlock synchronously.
func (h *Handler) UnlockProject(c *gin.Context) {
	summary, err := h.unlocker.UnlockProjectPayouts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetBreakdown(c *gin.Context) {
	breakdown, err := h.unlocker.GetBreakdown(c.Request.Context(), c.Param("id"), c.Param("editorId"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, breakdown.View())
}

func (h *Handler) GetWallet(c *gin.Context) {
	editorID := c.Param("id")
	w, err := h.wallets.Get(c.Request.Context(), editorID)
	if err != nil {
		c.Error(err)
		return
	}
	if w == nil {
		w = &wallet.Wallet{
			EditorID:         editorID,
			UnlockedBalance:  decimal.Zero,
			LifetimeEarnings: decimal.Zero,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"editorId":         w.EditorID,
		"unlockedBalance":  w.UnlockedBalance,
		"lifetimeEarnings": w.LifetimeEarnings,
	})
}

func (h *Handler) ListAuditTrail(c *gin.Context) {
	editorID := c.Param("id")
	entries, err := h.audits.List(c.Request.Context(), editorID)
	if err != nil {
		c.Error(err)
		return
	}
	verified, err := h.audits.VerifyChain(c.Request.Context(), editorID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"verified": verified,
	})
}

type createPayoutRequest struct {
	EditorID     string          `json:"editorId" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	PayoutMethod string          `json:"payoutMethod"`
}

func (h *Handler) CreatePayoutRequest(c *gin.Context) {
	var body createPayoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", err))
		return
	}

	request, err := h.withdrawals.Create(c.Request.Context(), withdrawal.CreateParams{
		EditorID:     body.EditorID,
		Amount:       body.Amount,
		PayoutMethod: body.PayoutMethod,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

type reviewPayoutRequest struct {
	ReviewerID string `json:"reviewerId" binding:"required"`
}

func (h *Handler) ApprovePayoutRequest(c *gin.Context) {
	var body reviewPayoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", err))
		return
	}

	request, err := h.withdrawals.Approve(c.Request.Context(), c.Param("id"), body.ReviewerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *Handler) RejectPayoutRequest(c *gin.Context) {
	var body reviewPayoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", err))
		return
	}

	request, err := h.withdrawals.Reject(c.Request.Context(), c.Param("id"), body.ReviewerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, request)
}

type markPaidRequest struct {
	TransactionRef string `json:"transactionRef" binding:"required"`
}

func (h *Handler) MarkPayoutRequestPaid(c *gin.Context) {
	var body markPaidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", err))
		return
	}

	request, err := h.withdrawals.MarkPaid(c.Request.Context(), c.Param("id"), body.TransactionRef)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *Handler) GetPayoutRequest(c *gin.Context) {
	request, err := h.withdrawals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *Handler) ListPayoutRequests(c *gin.Context) {
	requests, err := h.withdrawals.ListByEditor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
