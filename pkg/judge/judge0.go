package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	judge0Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devarena",
		Subsystem: "judge0",
		Name:      "requests_total",
		Help:      "Number of HTTP requests issued to the remote judge",
	}, []string{"operation"})

	judge0PollExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devarena",
		Subsystem: "judge0",
		Name:      "poll_exhaustions_total",
		Help:      "Number of submissions abandoned after the polling budget ran out",
	})
)

// Judge0 status ids. 1 and 2 mean the submission is still queued or
// processing; anything above 2 is terminal; 3 is a successful run.
const (
	judge0StatusQueued     = 1
	judge0StatusProcessing = 2
	judge0StatusAccepted   = 3
	judge0StatusWrong      = 4
	judge0StatusTimeLimit  = 5
	judge0StatusCompileErr = 6
)

var judge0LanguageIDs = map[string]int{
	LanguageJavaScript: 63,
	LanguagePython:     71,
	LanguageJava:       62,
	LanguageCPP:        54,
}

// Judge0Config defines configuration for the remote judge client.
type Judge0Config struct {
	BaseURL         string
	APIKey          string
	APIHost         string
	PollInterval    time.Duration
	MaxPollAttempts int
	TestCaseDelay   time.Duration
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// Judge0Client delegates execution to a Judge0 instance: submit, poll until a
// terminal status, map the judge's vocabulary onto the local verdicts.
type Judge0Client struct {
	cfg    Judge0Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

type judge0Submission struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type judge0Token struct {
	Token string `json:"token"`
}

type judge0Result struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Time          string `json:"time"`
	Memory        int64  `json:"memory"`
}

// NewJudge0Client builds a remote judge client from configuration.
func NewJudge0Client(cfg Judge0Config) *Judge0Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://judge0-ce.p.rapidapi.com"
	}
	if cfg.APIHost == "" {
		cfg.APIHost = "judge0-ce.p.rapidapi.com"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 10
	}
	if cfg.TestCaseDelay < 0 {
		cfg.TestCaseDelay = 0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Judge0Client{
		cfg:    cfg,
		http:   httpClient,
		tracer: otel.Tracer("github.com/devarena/devarena-api/pkg/judge"),
		logger: cfg.Logger.With().Str("component", "judge0_client").Logger(),
	}
}

// Name identifies the backend in dispatcher logs.
func (c *Judge0Client) Name() string { return "judge0" }

// Available reports whether the remote judge is credentialed. Without an API
// key the dispatcher must not attempt this backend.
func (c *Judge0Client) Available() bool { return c.cfg.APIKey != "" }

// SupportsLanguage reports whether Judge0 has a language id for the language.
func (c *Judge0Client) SupportsLanguage(language string) bool {
	_, ok := judge0LanguageIDs[language]
	return ok
}

// Execute runs every test case against the remote judge in index order. A
// transport-level failure (network error, non-2xx response, poll exhaustion)
// aborts the run and is returned to the dispatcher so it can fall back;
// judge-reported failures are absorbed into the affected TestResult. A fixed
// delay separates test cases to respect the service's rate limit, so N cases
// take at least N times that delay plus polling latency.
func (c *Judge0Client) Execute(parent context.Context, source, language string, cases []TestCase) (Outcome, error) {
	if !c.Available() {
		return Outcome{}, fmt.Errorf("judge0 api key not configured")
	}

	languageID, ok := judge0LanguageIDs[language]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrLanguageNotSupported, language)
	}

	ctx, span := c.tracer.Start(parent, "judge0.execute", trace.WithAttributes(
		attribute.String("language", language),
		attribute.Int("test_cases", len(cases)),
	))
	defer span.End()

	outcome := Outcome{Results: make([]TestResult, 0, len(cases))}

	for i, tc := range cases {
		if i > 0 && c.cfg.TestCaseDelay > 0 {
			if err := sleepContext(ctx, c.cfg.TestCaseDelay); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return Outcome{}, err
			}
		}

		result, err := c.runTestCase(ctx, source, language, languageID, i, tc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, err
		}

		outcome.Results = append(outcome.Results, result)
		if result.Passed {
			outcome.TotalPassed++
		} else {
			outcome.TotalFailed++
		}
		outcome.ExecutionTimeMs += result.ExecutionTimeMs
	}

	return outcome, nil
}

func (c *Judge0Client) runTestCase(ctx context.Context, source, language string, languageID, index int, tc TestCase) (TestResult, error) {
	result := TestResult{
		TestCaseIndex:  index,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}

	wrapped := wrapForJudge0(source, language, tc.Input)

	token, err := c.createSubmission(ctx, wrapped, languageID)
	if err != nil {
		return TestResult{}, err
	}

	remote, err := c.waitForResult(ctx, token)
	if err != nil {
		return TestResult{}, err
	}

	stdout := strings.TrimSpace(remote.Stdout)
	result.ActualOutput = stdout
	// A textually matching output under a non-success judge status (partial
	// output before a crash) must not count as a pass.
	result.Passed = remote.Status.ID == judge0StatusAccepted && Compare(tc.ExpectedOutput, stdout)

	if seconds, parseErr := strconv.ParseFloat(remote.Time, 64); parseErr == nil {
		result.ExecutionTimeMs = int64(math.Round(seconds * 1000))
	}

	switch remote.Status.ID {
	case judge0StatusAccepted:
		if result.Passed {
			result.Verdict = VerdictAccepted
		} else {
			result.Verdict = VerdictWrongAnswer
		}
	case judge0StatusWrong:
		result.Verdict = VerdictWrongAnswer
	case judge0StatusTimeLimit:
		result.Verdict = VerdictTimeLimitExceeded
		result.Error = "Time Limit Exceeded"
	case judge0StatusCompileErr:
		result.Verdict = VerdictCompilationError
		result.Error = remoteError(remote)
	default:
		result.Verdict = VerdictRuntimeError
		result.Error = remoteError(remote)
	}

	return result, nil
}

func remoteError(remote judge0Result) string {
	if msg := strings.TrimSpace(remote.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(remote.CompileOutput); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(remote.Message); msg != "" {
		return msg
	}
	return fmt.Sprintf("execution failed: %s", remote.Status.Description)
}

func (c *Judge0Client) createSubmission(ctx context.Context, source string, languageID int) (string, error) {
	payload, err := json.Marshal(judge0Submission{
		SourceCode: source,
		LanguageID: languageID,
		Stdin:      "",
	})
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	url := c.cfg.BaseURL + "/submissions?base64_encoded=false&wait=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	judge0Requests.WithLabelValues("create").Inc()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("judge0 submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("judge0 submit: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token judge0Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("judge0 submit: decode response: %w", err)
	}
	if token.Token == "" {
		return "", fmt.Errorf("judge0 submit: empty token")
	}
	return token.Token, nil
}

// waitForResult polls the submission until the judge reports a terminal
// status. Exhausting the attempt budget is a client-side timeout, distinct
// from the judge's own Time Limit Exceeded classification.
func (c *Judge0Client) waitForResult(ctx context.Context, token string) (judge0Result, error) {
	for attempt := 0; attempt < c.cfg.MaxPollAttempts; attempt++ {
		remote, err := c.fetchResult(ctx, token)
		if err != nil {
			return judge0Result{}, err
		}

		if remote.Status.ID > judge0StatusProcessing {
			return remote, nil
		}

		if err := sleepContext(ctx, c.cfg.PollInterval); err != nil {
			return judge0Result{}, err
		}
	}

	judge0PollExhaustions.Inc()
	return judge0Result{}, fmt.Errorf("judge0 poll: no terminal status after %d attempts", c.cfg.MaxPollAttempts)
}

func (c *Judge0Client) fetchResult(ctx context.Context, token string) (judge0Result, error) {
	url := c.cfg.BaseURL + "/submissions/" + token + "?base64_encoded=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return judge0Result{}, err
	}
	c.setAuthHeaders(req)

	judge0Requests.WithLabelValues("poll").Inc()
	resp, err := c.http.Do(req)
	if err != nil {
		return judge0Result{}, fmt.Errorf("judge0 poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return judge0Result{}, fmt.Errorf("judge0 poll: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var remote judge0Result
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return judge0Result{}, fmt.Errorf("judge0 poll: decode response: %w", err)
	}
	return remote, nil
}

func (c *Judge0Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}
}

// wrapForJudge0 appends a language-specific harness that invokes the
// submission's entry point with the raw input text and prints the result to
// stdout. Languages without a recognized entry point pass through unchanged
// and are judged on whatever the program itself prints.
func wrapForJudge0(source, language, input string) string {
	entryPoint, err := ExtractEntryPoint(source, language)
	if err != nil || entryPoint == "" {
		return source
	}

	switch language {
	case LanguageJavaScript:
		return fmt.Sprintf("%s\n\nconst result = %s(%s);\nconsole.log(JSON.stringify(result));", source, entryPoint, input)
	case LanguagePython:
		return fmt.Sprintf("%s\n\nresult = %s(%s)\nprint(result)", source, entryPoint, input)
	default:
		return source
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
