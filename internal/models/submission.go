package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle statuses. Running precedes exactly one terminal status;
// resubmission always creates a fresh record, history is never rewritten.
const (
	SubmissionStatusPending           = "Pending"
	SubmissionStatusRunning           = "Running"
	SubmissionStatusAccepted          = "Accepted"
	SubmissionStatusWrongAnswer       = "Wrong Answer"
	SubmissionStatusRuntimeError      = "Runtime Error"
	SubmissionStatusTimeLimitExceeded = "Time Limit Exceeded"
	SubmissionStatusCompilationError  = "Compilation Error"
)

// TestResult records one test case's outcome for a submission. Results are
// append-only and ordered by test case index.
type TestResult struct {
	TestCaseIndex   int    `json:"testCaseIndex"`
	Passed          bool   `json:"passed"`
	Input           string `json:"input"`
	ExpectedOutput  string `json:"expectedOutput"`
	ActualOutput    string `json:"actualOutput"`
	ExecutionTimeMs int64  `json:"executionTimeMs,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Submission is a user's attempt to solve a question, tracked through an
// asynchronous judging lifecycle.
type Submission struct {
	ID              uint                            `gorm:"primaryKey" json:"id"`
	UserID          uint                            `gorm:"not null;index:idx_submissions_user_question" json:"user_id"`
	QuestionID      uint                            `gorm:"not null;index:idx_submissions_user_question" json:"question_id"`
	Code            string                          `gorm:"type:text;not null" json:"code"`
	Language        string                          `gorm:"size:32;not null" json:"language"`
	Status          string                          `gorm:"size:32;not null;index" json:"status"`
	TestResults     datatypes.JSONSlice[TestResult] `json:"test_results"`
	TotalTestCases  int                             `gorm:"default:0" json:"total_test_cases"`
	PassedTestCases int                             `gorm:"default:0" json:"passed_test_cases"`
	ExecutionTimeMs int64                           `gorm:"default:0" json:"execution_time_ms"`
	Error           string                          `gorm:"type:text" json:"error,omitempty"`
	SubmittedAt     time.Time                       `json:"submitted_at"`
	CreatedAt       time.Time                       `json:"created_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
}

// IsTerminal reports whether the submission reached a final status.
func (s Submission) IsTerminal() bool {
	switch s.Status {
	case SubmissionStatusPending, SubmissionStatusRunning:
		return false
	default:
		return true
	}
}

// IsSuccess reports whether the submission solved every test case.
func (s Submission) IsSuccess() bool {
	return s.Status == SubmissionStatusAccepted && s.PassedTestCases == s.TotalTestCases
}
