package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/devarena/devarena-api/internal/dto"
	"github.com/devarena/devarena-api/internal/models"
	"github.com/devarena/devarena-api/internal/repository"
	"github.com/devarena/devarena-api/pkg/judge"
)

// ErrQuestionNotFound indicates the referenced question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrUnsupportedLanguage indicates no execution backend accepts the language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrNoPublicTestCases indicates the question has no visible test cases to
// preview against.
var ErrNoPublicTestCases = errors.New("no public test cases available")

// Executor abstracts the judge dispatcher for the lifecycle manager.
type Executor interface {
	SupportsLanguage(language string) bool
	Execute(ctx context.Context, source, language string, cases []judge.TestCase) (judge.Outcome, error)
}

// SubmissionService owns the submission lifecycle: create a Running record,
// judge asynchronously, finalize exactly once, and keep question statistics
// in step.
type SubmissionService interface {
	SubmitCode(ctx context.Context, userID uint, payload dto.SubmitCodeRequest) (dto.SubmissionResponse, error)
	RunCode(ctx context.Context, payload dto.RunCodeRequest) (dto.RunOutcomeResponse, error)
	GetByID(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	ListByUser(ctx context.Context, userID uint, limit int) ([]dto.SubmissionResponse, error)
	ListByUserAndQuestion(ctx context.Context, userID, questionID uint) ([]dto.SubmissionResponse, error)
	ListByQuestion(ctx context.Context, questionID uint, limit int) ([]dto.SubmissionResponse, error)
	ListRecent(ctx context.Context, userID uint, limit int) ([]dto.SubmissionResponse, error)
	UserStats(ctx context.Context, userID uint) (repository.UserSubmissionStats, error)
	SolvedQuestionIDs(ctx context.Context, userID uint) ([]uint, error)
	HasSolved(ctx context.Context, userID, questionID uint) (bool, error)
	DeleteUserQuestionSubmissions(ctx context.Context, userID, questionID uint) (int64, error)
	Wait()
}

// SubmissionServiceConfig groups lifecycle configuration knobs.
type SubmissionServiceConfig struct {
	CacheTTL     time.Duration
	EventSubject string
}

type submissionService struct {
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	executor    Executor
	redis       *redis.Client
	nats        *nats.Conn
	validator   *validator.Validate
	logger      zerolog.Logger
	cfg         SubmissionServiceConfig

	// inflight guards the single-writer invariant: at most one judging task
	// per submission id may ever be scheduled.
	mu       sync.Mutex
	inflight map[uint]struct{}
	wg       sync.WaitGroup
}

// NewSubmissionService constructs the submission lifecycle manager. The redis
// client and NATS connection are optional; without them caching and event
// publishing are skipped.
func NewSubmissionService(questions repository.QuestionRepository, submissions repository.SubmissionRepository, executor Executor, redisClient *redis.Client, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger, cfg SubmissionServiceConfig) SubmissionService {
	if cfg.EventSubject == "" {
		cfg.EventSubject = "devarena.submissions.finalized"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &submissionService{
		questions:   questions,
		submissions: submissions,
		executor:    executor,
		redis:       redisClient,
		nats:        natsConn,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		cfg:         cfg,
		inflight:    make(map[uint]struct{}),
	}
}

// SubmitCode persists a Running submission and schedules judging on a
// detached task. Only precondition failures surface here; every
// execution-phase failure becomes part of the eventually-observed status.
func (s *submissionService) SubmitCode(ctx context.Context, userID uint, payload dto.SubmitCodeRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if !s.executor.SupportsLanguage(language) {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	// The local sandbox judges function-call style; code it cannot locate a
	// callable in would fail every test case, so reject before persisting.
	if language == judge.LanguageJavaScript {
		if _, err := judge.ExtractEntryPoint(payload.Code, language); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	question, err := s.questions.GetByIDWithTestCases(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrQuestionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		UserID:         userID,
		QuestionID:     payload.QuestionID,
		Code:           payload.Code,
		Language:       language,
		Status:         models.SubmissionStatusRunning,
		TotalTestCases: len(question.TestCases),
		SubmittedAt:    time.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.schedule(submission.ID, question, payload.Code, language)

	return dto.NewSubmissionResponse(submission, true), nil
}

// schedule spawns the judging task unless one is already in flight for this
// submission id.
func (s *submissionService) schedule(submissionID uint, question models.Question, code, language string) {
	s.mu.Lock()
	if _, busy := s.inflight[submissionID]; busy {
		s.mu.Unlock()
		s.logger.Warn().Uint("submission_id", submissionID).Msg("judging already in flight, refusing duplicate schedule")
		return
	}
	s.inflight[submissionID] = struct{}{}
	s.mu.Unlock()

	cases := toJudgeTestCases(question.TestCases)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, submissionID)
			s.mu.Unlock()
		}()
		s.executeAndFinalize(submissionID, question.ID, code, language, cases)
	}()
}

// executeAndFinalize is the last line of defense: whatever happens during
// judging, the submission reaches a persisted terminal state.
func (s *submissionService) executeAndFinalize(submissionID, questionID uint, code, language string, cases []judge.TestCase) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Uint("submission_id", submissionID).Interface("panic", r).Msg("judging task panicked")
			s.finalize(ctx, submissionID, questionID, models.SubmissionStatusRuntimeError, repository.SubmissionFinalization{
				Error: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	outcome, err := s.executor.Execute(ctx, code, language, cases)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("code execution failed")
		s.finalize(ctx, submissionID, questionID, models.SubmissionStatusRuntimeError, repository.SubmissionFinalization{
			Error: err.Error(),
		})
		return
	}

	status := deriveStatus(outcome, len(cases))
	s.finalize(ctx, submissionID, questionID, status, repository.SubmissionFinalization{
		TestResults:     toModelTestResults(outcome.Results),
		PassedTestCases: outcome.TotalPassed,
		ExecutionTimeMs: outcome.ExecutionTimeMs,
	})
}

// finalize applies the terminal status in one update, refreshes the poll
// cache, notifies the statistics collaborator and publishes the lifecycle
// event.
func (s *submissionService) finalize(ctx context.Context, submissionID, questionID uint, status string, fields repository.SubmissionFinalization) {
	submission, err := s.submissions.UpdateStatus(ctx, submissionID, status, fields)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to persist terminal status")
		return
	}

	s.cacheSubmission(ctx, submission)

	wasSuccessful := status == models.SubmissionStatusAccepted
	if err := s.questions.IncrementSubmissionCounters(ctx, questionID, wasSuccessful); err != nil {
		s.logger.Error().Err(err).Uint("question_id", questionID).Msg("failed to update question statistics")
	}

	s.publishFinalized(submission)

	s.logger.Info().
		Uint("submission_id", submissionID).
		Str("status", status).
		Int("passed", submission.PassedTestCases).
		Int("total", submission.TotalTestCases).
		Msg("submission finalized")
}

// RunCode judges against the question's public test cases synchronously, with
// no persistence and no statistics side effects.
func (s *submissionService) RunCode(ctx context.Context, payload dto.RunCodeRequest) (dto.RunOutcomeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RunOutcomeResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if !s.executor.SupportsLanguage(language) {
		return dto.RunOutcomeResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	question, err := s.questions.GetByIDPublic(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RunOutcomeResponse{}, ErrQuestionNotFound
		}
		return dto.RunOutcomeResponse{}, err
	}

	public := question.PublicTestCases()
	if len(public) == 0 {
		return dto.RunOutcomeResponse{}, ErrNoPublicTestCases
	}

	outcome, err := s.executor.Execute(ctx, payload.Code, language, toJudgeTestCases(public))
	if err != nil {
		return dto.RunOutcomeResponse{}, err
	}

	results := make([]dto.TestResultResponse, 0, len(outcome.Results))
	for _, result := range toModelTestResults(outcome.Results) {
		results = append(results, dto.NewTestResultResponse(result))
	}

	return dto.RunOutcomeResponse{
		TestResults:     results,
		TotalPassed:     outcome.TotalPassed,
		TotalFailed:     outcome.TotalFailed,
		ExecutionTimeMs: outcome.ExecutionTimeMs,
	}, nil
}

func (s *submissionService) GetByID(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	if cached, ok := s.cachedSubmission(ctx, id); ok {
		return dto.NewSubmissionResponse(cached, true), nil
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.IsTerminal() {
		s.cacheSubmission(ctx, submission)
	}

	return dto.NewSubmissionResponse(submission, true), nil
}

func (s *submissionService) ListByUser(ctx context.Context, userID uint, limit int) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListByUser(ctx, userID, normalizeLimit(limit, 50))
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionListResponse(submissions), nil
}

func (s *submissionService) ListByUserAndQuestion(ctx context.Context, userID, questionID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListByUserAndQuestion(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionListResponse(submissions), nil
}

func (s *submissionService) ListByQuestion(ctx context.Context, questionID uint, limit int) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListByQuestion(ctx, questionID, normalizeLimit(limit, 50))
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionListResponse(submissions), nil
}

func (s *submissionService) ListRecent(ctx context.Context, userID uint, limit int) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListRecent(ctx, userID, normalizeLimit(limit, 10))
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionListResponse(submissions), nil
}

func (s *submissionService) UserStats(ctx context.Context, userID uint) (repository.UserSubmissionStats, error) {
	return s.submissions.UserStats(ctx, userID)
}

func (s *submissionService) SolvedQuestionIDs(ctx context.Context, userID uint) ([]uint, error) {
	return s.submissions.SolvedQuestionIDs(ctx, userID)
}

func (s *submissionService) HasSolved(ctx context.Context, userID, questionID uint) (bool, error) {
	return s.submissions.HasSolved(ctx, userID, questionID)
}

func (s *submissionService) DeleteUserQuestionSubmissions(ctx context.Context, userID, questionID uint) (int64, error) {
	return s.submissions.DeleteByUserAndQuestion(ctx, userID, questionID)
}

// Wait blocks until every in-flight judging task has finished. Used by tests
// and graceful shutdown.
func (s *submissionService) Wait() {
	s.wg.Wait()
}

type submissionFinalizedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	QuestionID   uint      `json:"question_id"`
	UserID       uint      `json:"user_id"`
	Status       string    `json:"status"`
	FinalizedAt  time.Time `json:"finalized_at"`
}

func (s *submissionService) publishFinalized(submission models.Submission) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(submissionFinalizedEvent{
		SubmissionID: submission.ID,
		QuestionID:   submission.QuestionID,
		UserID:       submission.UserID,
		Status:       submission.Status,
		FinalizedAt:  time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := s.nats.Publish(s.cfg.EventSubject, payload); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish finalized event")
	}
}

func (s *submissionService) cacheKey(id uint) string {
	return fmt.Sprintf("submissions:%d", id)
}

// cacheSubmission stores terminal submissions for the polling endpoint.
// Running submissions are never cached; their state is about to change.
func (s *submissionService) cacheSubmission(ctx context.Context, submission models.Submission) {
	if s.redis == nil || !submission.IsTerminal() {
		return
	}

	payload, err := json.Marshal(submission)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.cacheKey(submission.ID), payload, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Uint("submission_id", submission.ID).Msg("failed to cache submission")
	}
}

func (s *submissionService) cachedSubmission(ctx context.Context, id uint) (models.Submission, bool) {
	if s.redis == nil {
		return models.Submission{}, false
	}

	payload, err := s.redis.Get(ctx, s.cacheKey(id)).Bytes()
	if err != nil {
		return models.Submission{}, false
	}

	var submission models.Submission
	if err := json.Unmarshal(payload, &submission); err != nil {
		return models.Submission{}, false
	}
	return submission, true
}

// deriveStatus maps an execution outcome onto the terminal status taxonomy.
// Remote-judge classifications take precedence over the generic error rule:
// compilation errors first, then time limits, then any per-case error, then
// the pass count decides between Accepted and Wrong Answer.
func deriveStatus(outcome judge.Outcome, totalCases int) string {
	hasTimeLimit := false
	hasError := false
	for _, result := range outcome.Results {
		if result.Verdict == judge.VerdictCompilationError {
			return models.SubmissionStatusCompilationError
		}
		if result.Verdict == judge.VerdictTimeLimitExceeded {
			hasTimeLimit = true
		}
		if result.Error != "" {
			hasError = true
		}
	}

	switch {
	case hasTimeLimit:
		return models.SubmissionStatusTimeLimitExceeded
	case hasError:
		return models.SubmissionStatusRuntimeError
	case outcome.TotalPassed == totalCases:
		// Vacuously true for a question with no test cases: nothing failed.
		return models.SubmissionStatusAccepted
	default:
		return models.SubmissionStatusWrongAnswer
	}
}

func toJudgeTestCases(cases []models.TestCase) []judge.TestCase {
	converted := make([]judge.TestCase, 0, len(cases))
	for _, tc := range cases {
		converted = append(converted, judge.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Hidden:         tc.IsHidden,
		})
	}
	return converted
}

func toModelTestResults(results []judge.TestResult) []models.TestResult {
	converted := make([]models.TestResult, 0, len(results))
	for _, result := range results {
		converted = append(converted, models.TestResult{
			TestCaseIndex:   result.TestCaseIndex,
			Passed:          result.Passed,
			Input:           result.Input,
			ExpectedOutput:  result.ExpectedOutput,
			ActualOutput:    result.ActualOutput,
			ExecutionTimeMs: result.ExecutionTimeMs,
			Error:           result.Error,
		})
	}
	return converted
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 100 {
		return fallback
	}
	return limit
}
