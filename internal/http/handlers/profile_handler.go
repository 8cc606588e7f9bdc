package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasigigs/kasigigs-backend/internal/dto"
	"github.com/kasigigs/kasigigs-backend/internal/http/handlers/common"
	"github.com/kasigigs/kasigigs-backend/internal/service"
)

// ProfileHandler serves the caller's own account and public profiles.
type ProfileHandler struct {
	auth         *service.AuthService
	verification *service.VerificationService
	reviews      *service.ReviewService
}

func NewProfileHandler(auth *service.AuthService, verification *service.VerificationService, reviews *service.ReviewService) *ProfileHandler {
	return &ProfileHandler{auth: auth, verification: verification, reviews: reviews}
}

// Me handles GET /users/me.
func (h *ProfileHandler) Me(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, user)
}

// UpdateMe handles PATCH /users/me.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.UpdateProfileRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Location:    req.Location,
		Phone:       req.Phone,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, user)
}

// GetUser handles GET /users/:id. Public profile with rating aggregate.
func (h *ProfileHandler) GetUser(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	aggregate, err := h.reviews.Aggregate(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"user":   user,
		"rating": aggregate,
	})
}

// SendVerificationCode handles POST /users/me/verify/send.
func (h *ProfileHandler) SendVerificationCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Type string `json:"type" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var sendErr error
	switch req.Type {
	case "email":
		_, sendErr = h.verification.SendEmailCode(c.Request.Context(), userID)
	case "phone":
		_, sendErr = h.verification.SendPhoneCode(c.Request.Context(), userID)
	default:
		common.RespondBadRequest(c, "type must be email or phone")
		return
	}
	if sendErr != nil {
		_ = c.Error(sendErr)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "verification code sent", nil)
}

// ConfirmVerification handles POST /users/me/verify/confirm.
func (h *ProfileHandler) ConfirmVerification(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.VerifyCodeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.verification.Confirm(c.Request.Context(), userID, req.Type, req.Code); err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "verified", nil)
}
