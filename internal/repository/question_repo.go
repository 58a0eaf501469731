package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/devarena/devarena-api/internal/models"
)

// QuestionRepository exposes the question reads and statistics writes the
// judging pipeline depends on.
type QuestionRepository interface {
	GetByIDWithTestCases(ctx context.Context, id uint) (models.Question, error)
	GetByIDPublic(ctx context.Context, id uint) (models.Question, error)
	IncrementSubmissionCounters(ctx context.Context, questionID uint, wasSuccessful bool) error
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) GetByIDWithTestCases(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

// GetByIDPublic returns the question with hidden test cases and the reference
// solution withheld.
func (r *questionRepository) GetByIDPublic(ctx context.Context, id uint) (models.Question, error) {
	question, err := r.GetByIDWithTestCases(ctx, id)
	if err != nil {
		return models.Question{}, err
	}
	question.TestCases = question.PublicTestCases()
	question.Solution = ""
	return question, nil
}

// IncrementSubmissionCounters bumps the question's submission counters and
// recomputes the acceptance rate in a single UPDATE expression, so the rate is
// always derived from the just-incremented counters even under concurrent
// submissions.
func (r *questionRepository) IncrementSubmissionCounters(ctx context.Context, questionID uint, wasSuccessful bool) error {
	success := 0
	if wasSuccessful {
		success = 1
	}

	return r.db.WithContext(ctx).Model(&models.Question{}).
		Where("id = ?", questionID).
		Updates(map[string]interface{}{
			"total_submissions":      gorm.Expr("total_submissions + 1"),
			"successful_submissions": gorm.Expr("successful_submissions + ?", success),
			"acceptance_rate":        gorm.Expr("CAST(ROUND((successful_submissions + ?) * 100.0 / (total_submissions + 1)) AS INTEGER)", success),
		}).Error
}
