package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devarena/devarena-api/internal/dto"
	"github.com/devarena/devarena-api/internal/models"
	"github.com/devarena/devarena-api/internal/repository"
	"github.com/devarena/devarena-api/pkg/judge"
)

type stubQuestionRepo struct {
	mu         sync.Mutex
	questions  map[uint]models.Question
	increments []bool
}

func (s *stubQuestionRepo) GetByIDWithTestCases(_ context.Context, id uint) (models.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (s *stubQuestionRepo) GetByIDPublic(_ context.Context, id uint) (models.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	q.TestCases = q.PublicTestCases()
	q.Solution = ""
	return q, nil
}

func (s *stubQuestionRepo) IncrementSubmissionCounters(_ context.Context, _ uint, wasSuccessful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments = append(s.increments, wasSuccessful)
	return nil
}

type stubSubmissionRepo struct {
	mu     sync.Mutex
	nextID uint
	stored map[uint]models.Submission
}

func newStubSubmissionRepo() *stubSubmissionRepo {
	return &stubSubmissionRepo{stored: make(map[uint]models.Submission)}
}

func (s *stubSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	submission.ID = s.nextID
	s.stored[submission.ID] = *submission
	return nil
}

func (s *stubSubmissionRepo) UpdateStatus(_ context.Context, id uint, status string, fields repository.SubmissionFinalization) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	submission, ok := s.stored[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	submission.Status = status
	submission.TestResults = datatypes.NewJSONSlice(fields.TestResults)
	submission.PassedTestCases = fields.PassedTestCases
	submission.ExecutionTimeMs = fields.ExecutionTimeMs
	submission.Error = fields.Error
	s.stored[id] = submission
	return submission, nil
}

func (s *stubSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	submission, ok := s.stored[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) ListByUser(_ context.Context, _ uint, _ int) ([]models.Submission, error) {
	return nil, nil
}

func (s *stubSubmissionRepo) ListByUserAndQuestion(_ context.Context, _, _ uint) ([]models.Submission, error) {
	return nil, nil
}

func (s *stubSubmissionRepo) ListByQuestion(_ context.Context, _ uint, _ int) ([]models.Submission, error) {
	return nil, nil
}

func (s *stubSubmissionRepo) ListRecent(_ context.Context, _ uint, _ int) ([]models.Submission, error) {
	return nil, nil
}

func (s *stubSubmissionRepo) SolvedQuestionIDs(_ context.Context, _ uint) ([]uint, error) {
	return nil, nil
}

func (s *stubSubmissionRepo) HasSolved(_ context.Context, _, _ uint) (bool, error) {
	return false, nil
}

func (s *stubSubmissionRepo) DeleteByUserAndQuestion(_ context.Context, _, _ uint) (int64, error) {
	return 0, nil
}

func (s *stubSubmissionRepo) UserStats(_ context.Context, _ uint) (repository.UserSubmissionStats, error) {
	return repository.UserSubmissionStats{}, nil
}

type stubExecutor struct {
	mu        sync.Mutex
	outcome   judge.Outcome
	err       error
	languages map[string]bool
	calls     [][]judge.TestCase
	panics    bool
}

func (s *stubExecutor) SupportsLanguage(language string) bool {
	if s.languages == nil {
		return language == judge.LanguageJavaScript
	}
	return s.languages[language]
}

func (s *stubExecutor) Execute(_ context.Context, _, _ string, cases []judge.TestCase) (judge.Outcome, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cases)
	s.mu.Unlock()
	if s.panics {
		panic("executor exploded")
	}
	return s.outcome, s.err
}

func newTestService(questions *stubQuestionRepo, submissions *stubSubmissionRepo, executor *stubExecutor) *submissionService {
	svc := NewSubmissionService(questions, submissions, executor, nil, nil, validator.New(), zerolog.Nop(), SubmissionServiceConfig{})
	return svc.(*submissionService)
}

func twoCaseQuestion() models.Question {
	return models.Question{
		ID:    1,
		Title: "Two Sum",
		TestCases: datatypes.NewJSONSlice([]models.TestCase{
			{Input: "[2,7], 9", ExpectedOutput: "[0,1]"},
			{Input: "[3,4], 7", ExpectedOutput: "[0,1]", IsHidden: true},
		}),
	}
}

func passingOutcome(n int) judge.Outcome {
	outcome := judge.Outcome{TotalPassed: n, ExecutionTimeMs: 12}
	for i := 0; i < n; i++ {
		outcome.Results = append(outcome.Results, judge.TestResult{
			TestCaseIndex: i,
			Passed:        true,
			Verdict:       judge.VerdictAccepted,
		})
	}
	return outcome
}

func submitPayload() dto.SubmitCodeRequest {
	return dto.SubmitCodeRequest{
		QuestionID: 1,
		Code:       "function twoSum(nums, target) { return [0, 1]; }",
		Language:   "JavaScript",
	}
}

func TestSubmitCodeAllPassingFinalizesAccepted(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: passingOutcome(2)}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusRunning, response.Status)
	require.Equal(t, 2, response.TotalTestCases)

	svc.Wait()

	stored, err := submissions.GetByID(context.Background(), response.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAccepted, stored.Status)
	require.Equal(t, 2, stored.PassedTestCases)
	require.Equal(t, []bool{true}, questions.increments)

	// Hidden cases are judged on real submissions.
	require.Len(t, executor.calls[0], 2)
}

func TestSubmitCodePartialPassFinalizesWrongAnswer(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: judge.Outcome{
		Results: []judge.TestResult{
			{TestCaseIndex: 0, Passed: true, Verdict: judge.VerdictAccepted},
			{TestCaseIndex: 1, Passed: false, Verdict: judge.VerdictWrongAnswer, ActualOutput: "[1,0]"},
		},
		TotalPassed: 1,
		TotalFailed: 1,
	}}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusWrongAnswer, stored.Status)
	require.Equal(t, 1, stored.PassedTestCases)
	require.Equal(t, []bool{false}, questions.increments)
}

func TestSubmitCodeAnyCaseErrorFinalizesRuntimeError(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: judge.Outcome{
		Results: []judge.TestResult{
			{TestCaseIndex: 0, Passed: true, Verdict: judge.VerdictAccepted},
			{TestCaseIndex: 1, Passed: false, Verdict: judge.VerdictRuntimeError, Error: "TypeError: x is undefined"},
		},
		TotalPassed: 1,
		TotalFailed: 1,
	}}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusRuntimeError, stored.Status)
}

func TestSubmitCodeCompilationErrorTakesPrecedence(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: judge.Outcome{
		Results: []judge.TestResult{
			{TestCaseIndex: 0, Verdict: judge.VerdictCompilationError, Error: "syntax error"},
			{TestCaseIndex: 1, Verdict: judge.VerdictTimeLimitExceeded, Error: "Time Limit Exceeded"},
		},
		TotalFailed: 2,
	}}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusCompilationError, stored.Status)
}

func TestSubmitCodeTimeLimitVerdictFinalizesTimeLimitExceeded(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: judge.Outcome{
		Results: []judge.TestResult{
			{TestCaseIndex: 0, Verdict: judge.VerdictTimeLimitExceeded, Error: "Time Limit Exceeded"},
			{TestCaseIndex: 1, Passed: true, Verdict: judge.VerdictAccepted},
		},
		TotalPassed: 1,
		TotalFailed: 1,
	}}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusTimeLimitExceeded, stored.Status)
}

func TestSubmitCodeExecutorFailureFinalizesRuntimeError(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{err: errors.New("all backends down")}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusRuntimeError, stored.Status)
	require.Equal(t, "all backends down", stored.Error)
	require.Equal(t, []bool{false}, questions.increments)
}

func TestSubmitCodePanicStillReachesTerminalStatus(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{panics: true}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusRuntimeError, stored.Status)
	require.Contains(t, stored.Error, "internal error")
}

func TestSubmitCodeRejectsMissingEntryPoint(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	svc := newTestService(questions, submissions, &stubExecutor{})

	payload := submitPayload()
	payload.Code = "console.log('no function here')"
	_, err := svc.SubmitCode(context.Background(), 7, payload)
	require.ErrorIs(t, err, judge.ErrEntryPointNotFound)
	require.Empty(t, submissions.stored)
}

func TestSubmitCodeRejectsUnsupportedLanguage(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	svc := newTestService(questions, newStubSubmissionRepo(), &stubExecutor{})

	payload := submitPayload()
	payload.Language = "brainfuck"
	_, err := svc.SubmitCode(context.Background(), 7, payload)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSubmitCodeUnknownQuestion(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{}}
	svc := newTestService(questions, newStubSubmissionRepo(), &stubExecutor{})

	_, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestScheduleRefusesDuplicateInflight(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: passingOutcome(2)}
	svc := newTestService(questions, submissions, executor)

	svc.mu.Lock()
	svc.inflight[42] = struct{}{}
	svc.mu.Unlock()

	svc.schedule(42, twoCaseQuestion(), "function f() {}", judge.LanguageJavaScript)
	svc.Wait()

	executor.mu.Lock()
	defer executor.mu.Unlock()
	require.Empty(t, executor.calls)
}

func TestRunCodeUsesOnlyPublicTestCases(t *testing.T) {
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: twoCaseQuestion()}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{outcome: passingOutcome(1)}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.RunCode(context.Background(), dto.RunCodeRequest{
		QuestionID: 1,
		Code:       "function twoSum(a, b) { return [0, 1]; }",
		Language:   "javascript",
	})
	require.NoError(t, err)
	require.Equal(t, 1, response.TotalPassed)
	require.Len(t, executor.calls[0], 1)
	require.Equal(t, "[2,7], 9", executor.calls[0][0].Input)

	// Preview runs leave no trace.
	require.Empty(t, submissions.stored)
	require.Empty(t, questions.increments)
}

func TestRunCodeNoPublicTestCases(t *testing.T) {
	question := models.Question{
		ID: 1,
		TestCases: datatypes.NewJSONSlice([]models.TestCase{
			{Input: "1", ExpectedOutput: "1", IsHidden: true},
		}),
	}
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: question}}
	svc := newTestService(questions, newStubSubmissionRepo(), &stubExecutor{})

	_, err := svc.RunCode(context.Background(), dto.RunCodeRequest{
		QuestionID: 1,
		Code:       "function f() {}",
		Language:   "javascript",
	})
	require.ErrorIs(t, err, ErrNoPublicTestCases)
}

func TestGetByIDUnknownSubmission(t *testing.T) {
	svc := newTestService(&stubQuestionRepo{}, newStubSubmissionRepo(), &stubExecutor{})

	_, err := svc.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestDeriveStatusZeroTestCasesIsAccepted(t *testing.T) {
	status := deriveStatus(judge.Outcome{}, 0)
	require.Equal(t, models.SubmissionStatusAccepted, status)
}

func TestSubmitCodeZeroTestCaseQuestionFinalizesAccepted(t *testing.T) {
	question := models.Question{ID: 1, Title: "Placeholder"}
	questions := &stubQuestionRepo{questions: map[uint]models.Question{1: question}}
	submissions := newStubSubmissionRepo()
	executor := &stubExecutor{}
	svc := newTestService(questions, submissions, executor)

	response, err := svc.SubmitCode(context.Background(), 7, submitPayload())
	require.NoError(t, err)
	require.Zero(t, response.TotalTestCases)
	svc.Wait()

	stored, _ := submissions.GetByID(context.Background(), response.ID)
	require.Equal(t, models.SubmissionStatusAccepted, stored.Status)
	require.Zero(t, stored.PassedTestCases)
	require.Equal(t, []bool{true}, questions.increments)
}
