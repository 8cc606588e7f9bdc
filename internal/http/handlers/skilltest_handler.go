package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasigigs/kasigigs-backend/internal/dto"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// SkillTestHandler serves timed skill-test attempts tied to postings.
type SkillTestHandler struct {
	tests *service.SkillTestService
}

func NewSkillTestHandler(tests *service.SkillTestService) *SkillTestHandler {
	return &SkillTestHandler{tests: tests}
}

// Eligibility handles GET /postings/:id/skill-test/eligibility.
func (h *SkillTestHandler) Eligibility(c *gin.Context) {
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

	eligibility, err := h.tests.CanAttempt(c.Request.Context(), userID, postingID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, eligibility)
}

// Start handles POST /postings/:id/skill-test/attempts.
func (h *SkillTestHandler) Start(c *gin.Context) {
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

	attempt, err := h.tests.StartAttempt(c.Request.Context(), userID, role, postingID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// Get handles GET /skill-test/attempts/:id. Answer keys are never exposed.
func (h *SkillTestHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	attemptID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	attempt, err := h.tests.GetAttempt(c.Request.Context(), userID, attemptID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, attempt)
}

// Submit handles POST /skill-test/attempts/:id/submit.
func (h *SkillTestHandler) Submit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	attemptID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SubmitAttemptRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.tests.SubmitAttempt(c.Request.Context(), userID, attemptID, req.Answers, req.TabSwitches)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, result)
}

// ListForPosting handles GET /postings/:id/skill-test/attempts. Owner only.
func (h *SkillTestHandler) ListForPosting(c *gin.Context) {
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

	attempts, err := h.tests.ListAttemptsForPosting(c.Request.Context(), userID, postingID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"attempts": attempts})
}
