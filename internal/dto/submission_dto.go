package dto

import (
	"time"

	"github.com/devarena/devarena-api/internal/models"
)

// SubmitCodeRequest is the payload for creating a judged submission.
type SubmitCodeRequest struct {
	QuestionID uint   `json:"question_id" validate:"required,gt=0"`
	Code       string `json:"code" validate:"required,min=1"`
	Language   string `json:"language" validate:"required"`
}

// RunCodeRequest is the payload for a preview run against public test cases.
type RunCodeRequest struct {
	QuestionID uint   `json:"question_id" validate:"required,gt=0"`
	Code       string `json:"code" validate:"required,min=1"`
	Language   string `json:"language" validate:"required"`
}

// TestResultResponse is one test case's outcome as exposed to API consumers.
type TestResultResponse struct {
	TestCaseIndex   int    `json:"testCaseIndex"`
	Passed          bool   `json:"passed"`
	Input           string `json:"input"`
	ExpectedOutput  string `json:"expectedOutput"`
	ActualOutput    string `json:"actualOutput"`
	ExecutionTimeMs int64  `json:"executionTimeMs,omitempty"`
	Error           string `json:"error,omitempty"`
}

// SubmissionResponse represents a submission to API consumers. Clients poll
// this shape until Status leaves Running.
type SubmissionResponse struct {
	ID              uint                 `json:"id"`
	UserID          uint                 `json:"user_id"`
	QuestionID      uint                 `json:"question_id"`
	Code            string               `json:"code,omitempty"`
	Language        string               `json:"language"`
	Status          string               `json:"status"`
	TestResults     []TestResultResponse `json:"test_results"`
	TotalTestCases  int                  `json:"total_test_cases"`
	PassedTestCases int                  `json:"passed_test_cases"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
	Error           string               `json:"error,omitempty"`
	SubmittedAt     time.Time            `json:"submitted_at"`
}

// RunOutcomeResponse is the synchronous result of a preview run.
type RunOutcomeResponse struct {
	TestResults     []TestResultResponse `json:"test_results"`
	TotalPassed     int                  `json:"total_passed"`
	TotalFailed     int                  `json:"total_failed"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
}

// NewTestResultResponse converts a stored test result into a DTO.
func NewTestResultResponse(result models.TestResult) TestResultResponse {
	return TestResultResponse{
		TestCaseIndex:   result.TestCaseIndex,
		Passed:          result.Passed,
		Input:           result.Input,
		ExpectedOutput:  result.ExpectedOutput,
		ActualOutput:    result.ActualOutput,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Error:           result.Error,
	}
}

// NewSubmissionResponse builds a response DTO from a submission model.
func NewSubmissionResponse(submission models.Submission, includeCode bool) SubmissionResponse {
	results := make([]TestResultResponse, 0, len(submission.TestResults))
	for _, result := range submission.TestResults {
		results = append(results, NewTestResultResponse(result))
	}

	response := SubmissionResponse{
		ID:              submission.ID,
		UserID:          submission.UserID,
		QuestionID:      submission.QuestionID,
		Language:        submission.Language,
		Status:          submission.Status,
		TestResults:     results,
		TotalTestCases:  submission.TotalTestCases,
		PassedTestCases: submission.PassedTestCases,
		ExecutionTimeMs: submission.ExecutionTimeMs,
		Error:           submission.Error,
		SubmittedAt:     submission.SubmittedAt,
	}
	if includeCode {
		response.Code = submission.Code
	}
	return response
}

// NewSubmissionListResponse converts a slice of submissions, code withheld.
func NewSubmissionListResponse(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission, false))
	}
	return responses
}
