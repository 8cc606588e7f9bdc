package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SkillTestTemplate is an immutable, externally seeded question bank.
type SkillTestTemplate struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Category     string       `db:"category" json:"category"`
	Title        string       `db:"title" json:"title"`
	PassingScore int          `db:"passing_score" json:"passing_score"`
	Questions    QuestionPool `db:"questions" json:"-"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// SkillQuestion is one multiple-choice question. CorrectIndex never leaves
// the server; applicants receive questions through AttemptQuestionView.
type SkillQuestion struct {
	ID           string   `json:"id"`
	Difficulty   string   `json:"difficulty"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// View strips the answer key for delivery to the applicant.
func (q SkillQuestion) View() AttemptQuestionView {
	return AttemptQuestionView{
		ID:         q.ID,
		Difficulty: q.Difficulty,
		Text:       q.Text,
		Options:    q.Options,
	}
}

// AttemptQuestionView is the applicant-facing question shape.
type AttemptQuestionView struct {
	ID         string   `json:"id"`
	Difficulty string   `json:"difficulty"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

// QuestionPool stores questions as JSONB.
type QuestionPool []SkillQuestion

func (p QuestionPool) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *QuestionPool) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("question pool: unsupported scan type %T", src)
	}
}

// AtDifficulty returns the sub-pool at a difficulty tier.
func (p QuestionPool) AtDifficulty(difficulty string) QuestionPool {
	out := make(QuestionPool, 0, len(p))
	for _, q := range p {
		if q.Difficulty == difficulty {
			out = append(out, q)
		}
	}
	return out
}

// IntSlice stores submitted answer indexes as JSONB.
type IntSlice []int

func (s IntSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *IntSlice) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("int slice: unsupported scan type %T", src)
	}
}

// SkillTestAttempt is one timed execution of a template by one applicant
// for one posting. The question snapshot makes post-hoc review reproducible.
type SkillTestAttempt struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ApplicantID uuid.UUID    `db:"applicant_id" json:"applicant_id"`
	PostingID   uuid.UUID    `db:"posting_id" json:"posting_id"`
	TemplateID  uuid.UUID    `db:"template_id" json:"template_id"`
	Difficulty  string       `db:"difficulty" json:"difficulty"`
	Questions   QuestionPool `db:"questions" json:"-"`
	Answers     IntSlice     `db:"answers" json:"answers,omitempty"`
	Score       *int         `db:"score" json:"score,omitempty"`
	Passed      bool         `db:"passed" json:"passed"`
	TabSwitches int          `db:"tab_switches" json:"tab_switches"`
	TimedOut    bool         `db:"timed_out" json:"timed_out"`
	Status      string       `db:"status" json:"status"`
	Deadline    time.Time    `db:"deadline" json:"deadline"`
	StartedAt   time.Time    `db:"started_at" json:"started_at"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// Terminal reports whether the attempt reached a final status.
func (a *SkillTestAttempt) Terminal() bool {
	return a.Status != AttemptStatusInProgress
}
