package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the taxonomy kind of an error. The kind decides the HTTP
// status; the Reason field carries the stable machine code shown to clients.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodePrecondition ErrorCode = "PRECONDITION_FAILED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeExternal     ErrorCode = "EXTERNAL_ERROR"
	ErrCodeInvariant    ErrorCode = "INVARIANT_VIOLATION"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Reason     string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s (caused by: %v)", e.Code, e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, reason, message string) *AppError {
	return &AppError{
		Code:       code,
		Reason:     reason,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, reason, message string) *AppError {
	return &AppError{
		Code:       code,
		Reason:     reason,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodePrecondition:
		return http.StatusUnprocessableEntity
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func IsNotFound(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeForbidden
}

func IsConflict(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeConflict
}

func IsPrecondition(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodePrecondition
}

func IsInvariant(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == ErrCodeInvariant
}

// Not-found errors.
var (
	ErrPostingNotFound     = New(ErrCodeNotFound, "missing_posting", "posting not found")
	ErrApplicationNotFound = New(ErrCodeNotFound, "missing_application", "application not found")
	ErrAttemptNotFound     = New(ErrCodeNotFound, "missing_attempt", "skill test attempt not found")
	ErrTemplateNotFound    = New(ErrCodeNotFound, "missing_template", "skill test template not found")
	ErrMilestoneNotFound   = New(ErrCodeNotFound, "missing_milestone", "milestone not found")
	ErrEscrowNotFound      = New(ErrCodeNotFound, "missing_escrow", "escrow payment not found")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "missing_dispute", "dispute not found")
	ErrReviewNotFound      = New(ErrCodeNotFound, "missing_review", "review not found")
	ErrUserNotFound        = New(ErrCodeNotFound, "missing_user", "user not found")
)

// Authorization errors.
var (
	ErrUnauthorized       = New(ErrCodeUnauthorized, "unauthorized", "authentication required")
	ErrForbidden          = New(ErrCodeForbidden, "forbidden", "insufficient permissions")
	ErrForbiddenRole      = New(ErrCodeForbidden, "forbidden_role", "caller role may not perform this operation")
	ErrInvalidCredentials = New(ErrCodeUnauthorized, "invalid_credentials", "invalid credentials")
)

// Precondition errors of the gig lifecycle.
var (
	ErrDuplicateApplication  = New(ErrCodePrecondition, "duplicate_application", "an active application for this posting already exists")
	ErrRequiresTestNotPassed = New(ErrCodePrecondition, "requires_test_not_passed", "this posting requires a passed skill test")
	ErrPostingClosed         = New(ErrCodePrecondition, "posting_closed", "posting is not open for applications")
	ErrInvalidTransition     = New(ErrCodePrecondition, "invalid_transition", "the requested state transition is not allowed")
	ErrMilestoneNotNext      = New(ErrCodePrecondition, "milestone_not_next", "only the next pending milestone may be submitted")
	ErrGigNotCompleted       = New(ErrCodePrecondition, "gig_not_completed", "reviews are allowed only on completed gigs")
	ErrEscrowNotHeld         = New(ErrCodePrecondition, "escrow_not_held", "escrow payment is not in held state")
	ErrAttemptInProgress     = New(ErrCodePrecondition, "in_progress", "an attempt for this posting is already in progress")
	ErrAttemptCooldown       = New(ErrCodePrecondition, "cooldown", "a failed attempt is still within its cooldown window")
	ErrDisputeExists         = New(ErrCodePrecondition, "dispute_exists", "an unresolved dispute for this milestone already exists")
	ErrNoAcceptedApplication = New(ErrCodePrecondition, "not_hired", "the posting has no accepted application")
	ErrAlreadyReviewed       = New(ErrCodePrecondition, "already_reviewed", "a review for this gig was already submitted")
)

// Conflict: optimistic concurrency lost, safe to retry after refresh.
var ErrConflict = New(ErrCodeConflict, "conflict", "concurrent update detected, refresh and retry")

// Webhook signature mismatch.
var ErrBadSignature = New(ErrCodeUnauthorized, "bad_signature", "webhook signature verification failed")
