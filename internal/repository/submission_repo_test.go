package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/devarena/devarena-api/internal/models"
	"github.com/devarena/devarena-api/internal/repository"
)

func createSubmission(t *testing.T, repo repository.SubmissionRepository, userID, questionID uint, status string) models.Submission {
	t.Helper()

	submission := models.Submission{
		UserID:         userID,
		QuestionID:     questionID,
		Code:           "function f() { return 1; }",
		Language:       "javascript",
		Status:         status,
		TotalTestCases: 2,
		SubmittedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), &submission))
	return submission
}

func TestSubmissionRepositoryUpdateStatusAppliesAllFieldsAtOnce(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSubmissionRepository(db)
	submission := createSubmission(t, repo, 1, 1, models.SubmissionStatusRunning)

	updated, err := repo.UpdateStatus(context.Background(), submission.ID, models.SubmissionStatusAccepted, repository.SubmissionFinalization{
		TestResults: []models.TestResult{
			{TestCaseIndex: 0, Passed: true, ActualOutput: "[0,1]"},
			{TestCaseIndex: 1, Passed: true, ActualOutput: "[1,2]"},
		},
		PassedTestCases: 2,
		ExecutionTimeMs: 37,
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAccepted, updated.Status)
	require.Equal(t, 2, updated.PassedTestCases)
	require.EqualValues(t, 37, updated.ExecutionTimeMs)
	require.Len(t, updated.TestResults, 2)
	require.True(t, updated.IsTerminal())
}

func TestSubmissionRepositoryUpdateStatusUnknownID(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSubmissionRepository(db)

	_, err := repo.UpdateStatus(context.Background(), 999, models.SubmissionStatusAccepted, repository.SubmissionFinalization{})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositorySolvedAndStats(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSubmissionRepository(db)

	createSubmission(t, repo, 1, 10, models.SubmissionStatusAccepted)
	createSubmission(t, repo, 1, 10, models.SubmissionStatusWrongAnswer)
	createSubmission(t, repo, 1, 20, models.SubmissionStatusAccepted)
	createSubmission(t, repo, 1, 30, models.SubmissionStatusRuntimeError)
	createSubmission(t, repo, 2, 10, models.SubmissionStatusAccepted)

	solved, err := repo.SolvedQuestionIDs(context.Background(), 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{10, 20}, solved)

	hasSolved, err := repo.HasSolved(context.Background(), 1, 10)
	require.NoError(t, err)
	require.True(t, hasSolved)

	hasSolved, err = repo.HasSolved(context.Background(), 1, 30)
	require.NoError(t, err)
	require.False(t, hasSolved)

	stats, err := repo.UserStats(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.TotalSubmissions)
	require.EqualValues(t, 2, stats.AcceptedSubmissions)
	require.EqualValues(t, 2, stats.SolvedQuestions)
	require.Equal(t, 50, stats.AcceptanceRate)
}

func TestSubmissionRepositoryListScopesAndDelete(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSubmissionRepository(db)

	createSubmission(t, repo, 1, 10, models.SubmissionStatusAccepted)
	createSubmission(t, repo, 1, 20, models.SubmissionStatusWrongAnswer)
	createSubmission(t, repo, 2, 10, models.SubmissionStatusAccepted)

	byUser, err := repo.ListByUser(context.Background(), 1, 50)
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	byQuestion, err := repo.ListByQuestion(context.Background(), 10, 50)
	require.NoError(t, err)
	require.Len(t, byQuestion, 2)

	byBoth, err := repo.ListByUserAndQuestion(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, byBoth, 1)

	deleted, err := repo.DeleteByUserAndQuestion(context.Background(), 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	remaining, err := repo.ListByQuestion(context.Background(), 10, 50)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.EqualValues(t, 2, remaining[0].UserID)
}
