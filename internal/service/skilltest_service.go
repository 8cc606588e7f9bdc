package service

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kasigigs/kasigigs-backend/internal/models"
	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

// Anti-cheat thresholds.
const (
	maxTabSwitches  = 2
	submitGrace     = 5 * time.Second
	minPoolQuestion = 1
)

// SkillTestRepository is the storage surface the skill test service
// depends on.
type SkillTestRepository interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.SkillTestTemplate, error)
	GetActiveAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error)
	GetLastTerminalAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*models.SkillTestAttempt, error)
	HasPassedAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (bool, error)
	CreateAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.SkillTestAttempt, error)
	SealAttempt(ctx context.Context, attempt *models.SkillTestAttempt) error
	ListAttemptsByPosting(ctx context.Context, postingID uuid.UUID) ([]models.SkillTestAttempt, error)
}

// SkillTestPostingStore resolves the posting whose gate is being attempted.
type SkillTestPostingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Posting, error)
}

// SkillTestService runs timed, anti-cheat guarded test attempts against a
// posting's template gate.
type SkillTestService struct {
	repo     SkillTestRepository
	postings SkillTestPostingStore

	cooldown      time.Duration
	timeLimitFor  func(difficulty string) time.Duration
	questionCount int
}

// AttemptView is the applicant-facing attempt: questions without answers.
type AttemptView struct {
	ID        uuid.UUID                    `json:"id"`
	PostingID uuid.UUID                    `json:"posting_id"`
	Questions []models.AttemptQuestionView `json:"questions"`
	Deadline  time.Time                    `json:"deadline"`
	StartedAt time.Time                    `json:"started_at"`
}

// AttemptResult is what the applicant sees after sealing an attempt.
type AttemptResult struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Score    *int      `json:"score,omitempty"`
	Passed   bool      `json:"passed"`
	TimedOut bool      `json:"timed_out"`
}

// Eligibility deny reasons.
const (
	ReasonMissingPosting = "missing_posting"
	ReasonInProgress     = "in_progress"
	ReasonCooldown       = "cooldown"
)

// Eligibility reports whether a new attempt may start and, if not, why.
type Eligibility struct {
	CanAttempt    bool       `json:"can_attempt"`
	Reason        string     `json:"reason,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

func NewSkillTestService(repo SkillTestRepository, postings SkillTestPostingStore, cooldown time.Duration, timeLimitFor func(string) time.Duration, questionCount int) *SkillTestService {
	return &SkillTestService{
		repo:          repo,
		postings:      postings,
		cooldown:      cooldown,
		timeLimitFor:  timeLimitFor,
		questionCount: questionCount,
	}
}

// CanAttempt checks the gate without starting an attempt. A missing
// posting or one without a test gate denies rather than errors; a prior
// pass waives the cooldown.
func (s *SkillTestService) CanAttempt(ctx context.Context, applicantID, postingID uuid.UUID) (*Eligibility, error) {
	posting, err := s.postings.GetByID(ctx, postingID)
	if err != nil {
		if errors.Is(err, apperror.ErrPostingNotFound) {
			return &Eligibility{CanAttempt: false, Reason: ReasonMissingPosting}, nil
		}
		return nil, err
	}
	if !posting.RequiresSkillTest() {
		return &Eligibility{CanAttempt: false, Reason: ReasonMissingPosting}, nil
	}

	if active, err := s.repo.GetActiveAttempt(ctx, applicantID, postingID); err != nil {
		return nil, err
	} else if active != nil {
		return &Eligibility{CanAttempt: false, Reason: ReasonInProgress}, nil
	}

	passed, err := s.repo.HasPassedAttempt(ctx, applicantID, postingID)
	if err != nil {
		return nil, err
	}
	if passed {
		return &Eligibility{CanAttempt: true}, nil
	}

	last, err := s.repo.GetLastTerminalAttempt(ctx, applicantID, postingID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.CompletedAt != nil {
		until := last.CompletedAt.Add(s.cooldown)
		if time.Now().Before(until) {
			return &Eligibility{CanAttempt: false, Reason: ReasonCooldown, CooldownUntil: &until}, nil
		}
	}

	return &Eligibility{CanAttempt: true}, nil
}

// StartAttempt opens a timed attempt with a deterministic question draw.
func (s *SkillTestService) StartAttempt(ctx context.Context, applicantID uuid.UUID, applicantRole string, postingID uuid.UUID) (*AttemptView, error) {
	if applicantRole != models.RoleJobSeeker {
		return nil, apperror.ErrForbiddenRole
	}

	posting, err := s.postings.GetByID(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if !posting.RequiresSkillTest() {
		return nil, apperror.New(apperror.ErrCodePrecondition, "no_skill_test", "posting has no skill test")
	}
	if posting.Status != models.PostingStatusOpen {
		return nil, apperror.ErrPostingClosed
	}

	passed, err := s.repo.HasPassedAttempt(ctx, applicantID, postingID)
	if err != nil {
		return nil, err
	}
	if passed {
		return nil, apperror.New(apperror.ErrCodePrecondition, "already_passed", "the skill test for this posting is already passed")
	}

	last, err := s.repo.GetLastTerminalAttempt(ctx, applicantID, postingID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.CompletedAt != nil && time.Now().Before(last.CompletedAt.Add(s.cooldown)) {
		return nil, apperror.ErrAttemptCooldown
	}

	template, err := s.repo.GetTemplate(ctx, *posting.SkillTestTemplateID)
	if err != nil {
		return nil, err
	}

	difficulty := models.DifficultyIntermediate
	if posting.SkillTestDifficulty != nil {
		difficulty = *posting.SkillTestDifficulty
	}

	pool := template.Questions.AtDifficulty(difficulty)
	if len(pool) < minPoolQuestion {
		return nil, apperror.New(apperror.ErrCodePrecondition, "empty_pool", "template has no questions at the posting's difficulty")
	}

	attemptID := uuid.New()
	questions := drawQuestions(pool, s.questionCount, attemptID)

	now := time.Now()
	attempt := &models.SkillTestAttempt{
		ID:          attemptID,
		ApplicantID: applicantID,
		PostingID:   postingID,
		TemplateID:  template.ID,
		Difficulty:  difficulty,
		Questions:   questions,
		Status:      models.AttemptStatusInProgress,
		Deadline:    now.Add(s.timeLimitFor(difficulty)),
		StartedAt:   now,
	}

	// The unique in-progress index turns a double start into a
	// precondition failure inside CreateAttempt.
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	return attemptToView(attempt), nil
}

// GetAttempt returns the applicant's own attempt without answer keys.
func (s *SkillTestService) GetAttempt(ctx context.Context, callerID, attemptID uuid.UUID) (*AttemptView, error) {
	attempt, err := s.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.ApplicantID != callerID {
		return nil, apperror.ErrForbidden
	}
	return attemptToView(attempt), nil
}

// SubmitAttempt seals an in-progress attempt, scoring it server-side.
// Tab switching past the threshold fails the attempt as cheating, and so
// does a submission past the deadline (plus a small grace); the timeout
// case is logged and flagged on the attempt.
func (s *SkillTestService) SubmitAttempt(ctx context.Context, callerID, attemptID uuid.UUID, answers []int, tabSwitches int) (*AttemptResult, error) {
	attempt, err := s.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.ApplicantID != callerID {
		return nil, apperror.ErrForbidden
	}
	if attempt.Terminal() {
		return nil, apperror.New(apperror.ErrCodePrecondition, "attempt_sealed", "attempt is already sealed")
	}
	if len(answers) != len(attempt.Questions) {
		return nil, apperror.New(apperror.ErrCodeValidation, "answer_count_mismatch", "one answer per question is required")
	}

	posting, err := s.postings.GetByID(ctx, attempt.PostingID)
	if err != nil {
		return nil, err
	}
	passingScore := 70
	if posting.PassingScore != nil {
		passingScore = *posting.PassingScore
	}

	now := time.Now()
	attempt.Answers = answers
	attempt.TabSwitches = tabSwitches
	attempt.CompletedAt = &now

	switch {
	case tabSwitches >= maxTabSwitches:
		attempt.Status = models.AttemptStatusFailedCheat
		attempt.Passed = false
	case now.After(attempt.Deadline.Add(submitGrace)):
		attempt.Status = models.AttemptStatusFailedCheat
		attempt.TimedOut = true
		attempt.Passed = false
		logrus.WithFields(logrus.Fields{
			"attempt_id": attempt.ID,
			"deadline":   attempt.Deadline,
			"overrun":    now.Sub(attempt.Deadline),
		}).Warn("skill test: submission past deadline")
	default:
		score := scoreAttempt(attempt.Questions, answers)
		attempt.Score = &score
		attempt.Status = models.AttemptStatusCompleted
		attempt.Passed = score >= passingScore
	}

	if err := s.repo.SealAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	return &AttemptResult{
		ID:       attempt.ID,
		Status:   attempt.Status,
		Score:    attempt.Score,
		Passed:   attempt.Passed,
		TimedOut: attempt.TimedOut,
	}, nil
}

// ListAttemptsForPosting lets the posting owner audit attempts, including
// the question snapshots and given answers.
func (s *SkillTestService) ListAttemptsForPosting(ctx context.Context, callerID, postingID uuid.UUID) ([]models.SkillTestAttempt, error) {
	posting, err := s.postings.GetByID(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if posting.OwnerID != callerID {
		return nil, apperror.ErrForbidden
	}
	return s.repo.ListAttemptsByPosting(ctx, postingID)
}

// drawQuestions picks up to count questions from the pool. The draw is
// seeded from the attempt id so a retried read reproduces the same paper.
func drawQuestions(pool models.QuestionPool, count int, attemptID uuid.UUID) models.QuestionPool {
	seed := int64(binary.BigEndian.Uint64(attemptID[:8]))
	rng := rand.New(rand.NewSource(seed))

	shuffled := make(models.QuestionPool, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if count > 0 && count < len(shuffled) {
		shuffled = shuffled[:count]
	}
	return shuffled
}

// scoreAttempt returns the percentage of correct answers, rounded down.
func scoreAttempt(questions models.QuestionPool, answers []int) int {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectIndex {
			correct++
		}
	}
	return correct * 100 / len(questions)
}

func attemptToView(attempt *models.SkillTestAttempt) *AttemptView {
	views := make([]models.AttemptQuestionView, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		views = append(views, q.View())
	}
	return &AttemptView{
		ID:        attempt.ID,
		PostingID: attempt.PostingID,
		Questions: views,
		Deadline:  attempt.Deadline,
		StartedAt: attempt.StartedAt,
	}
}
