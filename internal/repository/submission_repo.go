package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devarena/devarena-api/internal/models"
)

// SubmissionFinalization carries the execution-phase fields that are applied
// together with the terminal status in a single update.
type SubmissionFinalization struct {
	TestResults     []models.TestResult
	PassedTestCases int
	ExecutionTimeMs int64
	Error           string
}

// UserSubmissionStats aggregates a user's submission history.
type UserSubmissionStats struct {
	TotalSubmissions    int64 `json:"total_submissions"`
	AcceptedSubmissions int64 `json:"accepted_submissions"`
	SolvedQuestions     int64 `json:"solved_questions"`
	AcceptanceRate      int   `json:"acceptance_rate"`
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	UpdateStatus(ctx context.Context, id uint, status string, fields SubmissionFinalization) (models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.Submission, error)
	ListByUserAndQuestion(ctx context.Context, userID, questionID uint) ([]models.Submission, error)
	ListByQuestion(ctx context.Context, questionID uint, limit int) ([]models.Submission, error)
	ListRecent(ctx context.Context, userID uint, limit int) ([]models.Submission, error)
	SolvedQuestionIDs(ctx context.Context, userID uint) ([]uint, error)
	HasSolved(ctx context.Context, userID, questionID uint) (bool, error)
	DeleteByUserAndQuestion(ctx context.Context, userID, questionID uint) (int64, error)
	UserStats(ctx context.Context, userID uint) (UserSubmissionStats, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// UpdateStatus applies the terminal status and execution fields in one update,
// so readers never observe partial results, and returns the stored record.
func (r *submissionRepository) UpdateStatus(ctx context.Context, id uint, status string, fields SubmissionFinalization) (models.Submission, error) {
	updates := map[string]interface{}{
		"status":            status,
		"passed_test_cases": fields.PassedTestCases,
		"execution_time_ms": fields.ExecutionTimeMs,
		"error":             fields.Error,
		"test_results":      datatypes.NewJSONSlice(fields.TestResults),
	}

	tx := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return models.Submission{}, tx.Error
	}
	if tx.RowsAffected == 0 {
		return models.Submission{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) ListByUserAndQuestion(ctx context.Context, userID, questionID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Order("submitted_at DESC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) ListByQuestion(ctx context.Context, questionID uint, limit int) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) ListRecent(ctx context.Context, userID uint, limit int) ([]models.Submission, error) {
	return r.ListByUser(ctx, userID, limit)
}

func (r *submissionRepository) SolvedQuestionIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Distinct("question_id").
		Where("user_id = ? AND status = ?", userID, models.SubmissionStatusAccepted).
		Pluck("question_id", &ids).Error
	return ids, err
}

func (r *submissionRepository) HasSolved(ctx context.Context, userID, questionID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND question_id = ? AND status = ?", userID, questionID, models.SubmissionStatusAccepted).
		Count(&count).Error
	return count > 0, err
}

func (r *submissionRepository) DeleteByUserAndQuestion(ctx context.Context, userID, questionID uint) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Delete(&models.Submission{})
	return tx.RowsAffected, tx.Error
}

func (r *submissionRepository) UserStats(ctx context.Context, userID uint) (UserSubmissionStats, error) {
	stats := UserSubmissionStats{}

	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalSubmissions).Error; err != nil {
		return UserSubmissionStats{}, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND status = ?", userID, models.SubmissionStatusAccepted).
		Count(&stats.AcceptedSubmissions).Error; err != nil {
		return UserSubmissionStats{}, err
	}

	solved, err := r.SolvedQuestionIDs(ctx, userID)
	if err != nil {
		return UserSubmissionStats{}, err
	}
	stats.SolvedQuestions = int64(len(solved))

	if stats.TotalSubmissions > 0 {
		stats.AcceptanceRate = int(float64(stats.AcceptedSubmissions)/float64(stats.TotalSubmissions)*100 + 0.5)
	}
	return stats, nil
}
