package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/dto"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// ApplicationHandler serves candidate applications and the hire flow.
type ApplicationHandler struct {
	applications *service.ApplicationService
}

func NewApplicationHandler(applications *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

// Apply handles POST /applications.
func (h *ApplicationHandler) Apply(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	var req dto.ApplyRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	application, err := h.applications.Apply(c.Request.Context(), userID, role, service.ApplyInput{
		PostingID:     req.PostingID,
		CoverLetter:   req.CoverLetter,
		ProposedRate:  req.ProposedRate,
		Timeline:      req.Timeline,
		AttachmentIDs: req.AttachmentIDs,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, application)
}

// Withdraw handles POST /applications/:id/withdraw.
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, applicationID, userID uuid.UUID) (*models.Application, error) {
		return h.applications.Withdraw(ctx.Request.Context(), applicationID, userID)
	})
}

// Shortlist handles POST /applications/:id/shortlist.
func (h *ApplicationHandler) Shortlist(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, applicationID, userID uuid.UUID) (*models.Application, error) {
		return h.applications.Shortlist(ctx.Request.Context(), applicationID, userID)
	})
}

// Reject handles POST /applications/:id/reject.
func (h *ApplicationHandler) Reject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	applicationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondBadRequest(c, err.Error())
		return
	}

	application, err := h.applications.Reject(c.Request.Context(), applicationID, userID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, application)
}

// Accept handles POST /applications/:id/accept. Hiring closes the posting
// and, for gigs, creates the milestone plan in the same transaction.
func (h *ApplicationHandler) Accept(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	applicationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.AcceptApplicationRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	plan := make([]models.MilestonePlanItem, 0, len(req.Milestones))
	for _, item := range req.Milestones {
		plan = append(plan, models.MilestonePlanItem{
			Title:      item.Title,
			Percentage: item.Percentage,
		})
	}

	application, err := h.applications.Accept(c.Request.Context(), userID, service.AcceptInput{
		ApplicationID: applicationID,
		AgreedAmount:  req.AgreedAmount,
		Milestones:    plan,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, application)
}

// ListForPosting handles GET /postings/:id/applications. Owner only.
func (h *ApplicationHandler) ListForPosting(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	postingID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	applications, err := h.applications.ListForPosting(c.Request.Context(), postingID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"applications": applications})
}

// ListMine handles GET /applications/mine.
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	applications, err := h.applications.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"applications": applications})
}

func (h *ApplicationHandler) transition(c *gin.Context, fn func(*gin.Context, uuid.UUID, uuid.UUID) (*models.Application, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	applicationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	application, err := fn(c, applicationID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, application)
}
