package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasigigs/kasigigs-backend/internal/dto"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// EscrowHandler serves escrow funding, release, refunds and the
// payment gateway webhook.
type EscrowHandler struct {
	escrows *service.EscrowService
}

func NewEscrowHandler(escrows *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows}
}

// Fund handles POST /milestones/:id/fund. Returns the gateway redirect URL.
func (h *EscrowHandler) Fund(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.escrows.Fund(c.Request.Context(), userID, milestoneID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"escrow":       result.Escrow,
		"redirect_url": result.RedirectURL,
	})
}

// Webhook handles POST /webhooks/payments. Unauthenticated; trust comes
// from the HMAC signature over the flat field map. Replays are absorbed
// by the stored event id, so the gateway always gets a 200 back for a
// well-signed event it already delivered.
func (h *EscrowHandler) Webhook(c *gin.Context) {
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		common.RespondBadRequest(c, "expected a flat JSON object")
		return
	}

	if err := h.escrows.HandleWebhook(c.Request.Context(), fields); err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "accepted", nil)
}

// Release handles POST /escrows/:id/release. Pays the worker out.
func (h *EscrowHandler) Release(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Release(c.Request.Context(), userID, escrowID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, escrow)
}

// Refund handles POST /escrows/:id/refund.
func (h *EscrowHandler) Refund(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RefundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Refund(c.Request.Context(), userID, role, escrowID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, escrow)
}

// Get handles GET /escrows/:id.
func (h *EscrowHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Get(c.Request.Context(), userID, escrowID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, escrow)
}

// ListByGig handles GET /gigs/:id/escrows.
func (h *EscrowHandler) ListByGig(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	gigID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrows, err := h.escrows.ListByGig(c.Request.Context(), userID, gigID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"escrows": escrows})
}

// Ledger handles GET /escrows/:id/ledger.
func (h *EscrowHandler) Ledger(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	entries, err := h.escrows.Ledger(c.Request.Context(), userID, escrowID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"entries": entries})
}
