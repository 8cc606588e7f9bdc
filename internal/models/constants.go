package models

// User roles.
const (
	RoleEmployer  = "employer"
	RoleJobSeeker = "job_seeker"
	RoleAdmin     = "admin"
)

// Posting kinds.
const (
	PostingKindJob = "job"
	PostingKindGig = "gig"
)

// Posting statuses.
const (
	PostingStatusOpen       = "open"
	PostingStatusInProgress = "in_progress"
	PostingStatusCompleted  = "completed"
	PostingStatusCancelled  = "cancelled"
	PostingStatusFlagged    = "flagged"
)

// Application statuses.
const (
	ApplicationStatusPending     = "pending"
	ApplicationStatusShortlisted = "shortlisted"
	ApplicationStatusAccepted    = "accepted"
	ApplicationStatusRejected    = "rejected"
	ApplicationStatusWithdrawn   = "withdrawn"
)

// Skill test difficulties.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Skill test attempt statuses.
const (
	AttemptStatusInProgress  = "in_progress"
	AttemptStatusCompleted   = "completed"
	AttemptStatusFailedCheat = "failed_cheat"
	AttemptStatusAbandoned   = "abandoned"
)

// Milestone statuses.
const (
	MilestoneStatusPending           = "pending"
	MilestoneStatusSubmitted         = "submitted"
	MilestoneStatusApproved          = "approved"
	MilestoneStatusRejected          = "rejected"
	MilestoneStatusRevisionRequested = "revision_requested"
	MilestoneStatusPaid              = "paid"
)

// Escrow states.
const (
	EscrowStatusInitiated = "initiated"
	EscrowStatusHeld      = "held"
	EscrowStatusReleased  = "released"
	EscrowStatusRefunded  = "refunded"
	EscrowStatusDisputed  = "disputed"
)

// Pending gateway intent states.
const (
	IntentKindSession = "session"
	IntentKindPayout  = "payout"
	IntentKindRefund  = "refund"

	IntentStatusPending   = "pending"
	IntentStatusCompleted = "completed"
	IntentStatusFailed    = "failed"
)

// Ledger entry types.
const (
	LedgerEntryHold        = "escrow_hold"
	LedgerEntryRelease     = "escrow_release"
	LedgerEntryRefund      = "escrow_refund"
	LedgerEntryPlatformFee = "platform_fee"
)

// Dispute statuses and verdicts.
const (
	DisputeStatusOpen             = "open"
	DisputeStatusAwaitingResponse = "awaiting_response"
	DisputeStatusUnderReview      = "under_review"
	DisputeStatusResolved         = "resolved"

	VerdictReleaseToPayee = "release_to_payee"
	VerdictRefundToPayer  = "refund_to_payer"
	VerdictSplit          = "split"
)

// Moderation report targets and statuses.
const (
	ReportTargetPosting = "posting"
	ReportTargetReview  = "review"
	ReportTargetUser    = "user"

	ReportStatusPending     = "pending"
	ReportStatusActionTaken = "action_taken"
	ReportStatusDismissed   = "dismissed"
)

// ValidPostingStatuses lists the valid posting statuses.
var ValidPostingStatuses = map[string]struct{}{
	PostingStatusOpen:       {},
	PostingStatusInProgress: {},
	PostingStatusCompleted:  {},
	PostingStatusCancelled:  {},
	PostingStatusFlagged:    {},
}

// ValidApplicationStatuses lists the valid application statuses.
var ValidApplicationStatuses = map[string]struct{}{
	ApplicationStatusPending:     {},
	ApplicationStatusShortlisted: {},
	ApplicationStatusAccepted:    {},
	ApplicationStatusRejected:    {},
	ApplicationStatusWithdrawn:   {},
}

// ValidDifficulties lists the valid skill test difficulties.
var ValidDifficulties = map[string]struct{}{
	DifficultyBeginner:     {},
	DifficultyIntermediate: {},
	DifficultyAdvanced:     {},
}

// TerminalApplicationStatuses lists statuses no transition may leave.
var TerminalApplicationStatuses = map[string]struct{}{
	ApplicationStatusAccepted:  {},
	ApplicationStatusRejected:  {},
	ApplicationStatusWithdrawn: {},
}
