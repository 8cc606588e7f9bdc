package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kasigigs/kasigigs-backend/internal/dto"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// PostingHandler serves job and gig postings.
type PostingHandler struct {
	postings *service.PostingService
}

func NewPostingHandler(postings *service.PostingService) *PostingHandler {
	return &PostingHandler{postings: postings}
}

func postingInput(req dto.PostingRequest) service.PostingInput {
	return service.PostingInput{
		Kind:           req.Kind,
		Title:          req.Title,
		Description:    req.Description,
		RequiredSkills: req.RequiredSkills,
		Location:       req.Location,
		BudgetMin:      req.BudgetMin,
		BudgetMax:      req.BudgetMax,

		SkillTestTemplateID: req.SkillTestTemplateID,
		SkillTestDifficulty: req.SkillTestDifficulty,
		PassingScore:        req.PassingScore,
	}
}

// Create handles POST /postings.
func (h *PostingHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	var req dto.PostingRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	posting, err := h.postings.Create(c.Request.Context(), userID, role, postingInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, posting)
}

// Get handles GET /postings/:id.
func (h *PostingHandler) Get(c *gin.Context) {
	postingID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	posting, err := h.postings.Get(c.Request.Context(), postingID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, posting)
}

// Update handles PUT /postings/:id.
func (h *PostingHandler) Update(c *gin.Context) {
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

	var req dto.PostingRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	posting, err := h.postings.Update(c.Request.Context(), postingID, userID, postingInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, posting)
}

// Cancel handles POST /postings/:id/cancel.
func (h *PostingHandler) Cancel(c *gin.Context) {
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

	if err := h.postings.Cancel(c.Request.Context(), postingID, userID); err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "posting cancelled", nil)
}

// Flag handles POST /postings/:id/flag. Admin only.
func (h *PostingHandler) Flag(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	postingID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.postings.Flag(c.Request.Context(), postingID, userID, role); err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "posting flagged", nil)
}

// List handles GET /postings with filters.
func (h *PostingHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	filter := models.PostingFilter{
		Limit:  limit,
		Offset: offset,
	}
	if skills := c.Query("skills"); skills != "" {
		filter.Skills = strings.Split(skills, ",")
	}
	if location := c.Query("location"); location != "" {
		filter.Location = &location
	}
	if kind := c.Query("kind"); kind != "" {
		filter.Kind = &kind
	}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}
	if min := c.Query("budget_min"); min != "" {
		v := int64(common.ParseIntQuery(c, "budget_min", 0))
		filter.BudgetMin = &v
	}
	if max := c.Query("budget_max"); max != "" {
		v := int64(common.ParseIntQuery(c, "budget_max", 0))
		filter.BudgetMax = &v
	}

	postings, err := h.postings.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"postings": postings})
}

// ListOwn handles GET /postings/mine.
func (h *PostingHandler) ListOwn(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	postings, err := h.postings.ListOwn(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"postings": postings})
}
