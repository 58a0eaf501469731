package judge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Languages accepted by the judging pipeline.
const (
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageCPP        = "cpp"
)

// Verdict classifies the outcome of a single test case.
type Verdict string

// Per-test-case verdicts.
const (
	VerdictAccepted          Verdict = "accepted"
	VerdictWrongAnswer       Verdict = "wrong_answer"
	VerdictRuntimeError      Verdict = "runtime_error"
	VerdictTimeLimitExceeded Verdict = "time_limit_exceeded"
	VerdictCompilationError  Verdict = "compilation_error"
)

// ErrLanguageNotSupported indicates no available backend can run the language.
var ErrLanguageNotSupported = errors.New("language not supported")

// ErrEntryPointNotFound indicates the submission defines no recognizable callable.
var ErrEntryPointNotFound = errors.New("could not find function in code")

// TestCase is one input/expected-output pair a submission is judged against.
type TestCase struct {
	Input          string
	ExpectedOutput string
	Hidden         bool
}

// TestResult records the outcome of running a submission against one test case.
type TestResult struct {
	TestCaseIndex   int
	Passed          bool
	Input           string
	ExpectedOutput  string
	ActualOutput    string
	ExecutionTimeMs int64
	Error           string
	Verdict         Verdict
}

// Outcome aggregates the results of running a submission against a full
// test-case set. TotalPassed + TotalFailed always equals len(Results).
type Outcome struct {
	Results         []TestResult
	TotalPassed     int
	TotalFailed     int
	ExecutionTimeMs int64
}

// Backend executes a submission against a set of test cases. Test cases run
// strictly in index order, one at a time.
type Backend interface {
	Name() string
	Available() bool
	SupportsLanguage(language string) bool
	Execute(ctx context.Context, source, language string, cases []TestCase) (Outcome, error)
}

// Dispatcher tries an ordered list of backends until one produces an outcome.
// A backend failure is logged with its cause before the next backend is tried.
type Dispatcher struct {
	backends []Backend
	logger   zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given backends, tried in order.
func NewDispatcher(logger zerolog.Logger, backends ...Backend) *Dispatcher {
	return &Dispatcher{
		backends: backends,
		logger:   logger.With().Str("component", "judge_dispatcher").Logger(),
	}
}

// SupportsLanguage reports whether any available backend can run the language.
func (d *Dispatcher) SupportsLanguage(language string) bool {
	for _, backend := range d.backends {
		if backend.Available() && backend.SupportsLanguage(language) {
			return true
		}
	}
	return false
}

// Execute runs the submission on the first backend that accepts the language
// and is available, falling back down the list on failure. Entry-point
// extraction failures are precondition errors and never trigger a fallback.
func (d *Dispatcher) Execute(ctx context.Context, source, language string, cases []TestCase) (Outcome, error) {
	var lastErr error
	attempted := false

	for _, backend := range d.backends {
		if !backend.SupportsLanguage(language) {
			continue
		}
		if !backend.Available() {
			d.logger.Debug().Str("backend", backend.Name()).Str("language", language).Msg("backend unavailable, skipping")
			continue
		}

		attempted = true
		outcome, err := backend.Execute(ctx, source, language, cases)
		if err != nil {
			if errors.Is(err, ErrEntryPointNotFound) {
				return Outcome{}, err
			}
			d.logger.Warn().Err(err).Str("backend", backend.Name()).Str("language", language).Msg("backend execution failed, trying next")
			lastErr = err
			continue
		}
		return outcome, nil
	}

	if !attempted {
		return Outcome{}, fmt.Errorf("%w: %s", ErrLanguageNotSupported, language)
	}
	return Outcome{}, lastErr
}
