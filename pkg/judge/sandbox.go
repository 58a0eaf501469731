package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SandboxConfig describes the local sandbox's execution knobs.
type SandboxConfig struct {
	Image           string
	TestCaseTimeout time.Duration
	MemoryLimitMB   int64
	CPUShares       int64
	WorkspaceRoot   string
	Logger          zerolog.Logger
}

// Sandbox executes JavaScript submissions against test cases, one container
// per test case. The deadline is per test case: an expiry kills only that
// case's container and the remaining cases still run.
type Sandbox struct {
	runner ContainerRunner
	cfg    SandboxConfig
	logger zerolog.Logger
}

// NewSandbox constructs the local sandbox backend on top of a container runner.
func NewSandbox(runner ContainerRunner, cfg SandboxConfig) *Sandbox {
	if cfg.Image == "" {
		cfg.Image = "node:20-alpine"
	}
	if cfg.TestCaseTimeout <= 0 {
		cfg.TestCaseTimeout = 5 * time.Second
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	return &Sandbox{
		runner: runner,
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "sandbox").Logger(),
	}
}

// Name identifies the backend in dispatcher logs.
func (s *Sandbox) Name() string { return "sandbox" }

// Available reports whether the sandbox can execute code.
func (s *Sandbox) Available() bool { return s.runner != nil }

// SupportsLanguage reports whether the sandbox natively runs the language.
func (s *Sandbox) SupportsLanguage(language string) bool {
	return language == LanguageJavaScript
}

// Execute runs every test case in index order. A missing entry point is fatal
// for the whole submission; any other per-case failure is absorbed into that
// case's TestResult and the siblings still run.
func (s *Sandbox) Execute(ctx context.Context, source, language string, cases []TestCase) (Outcome, error) {
	if !s.SupportsLanguage(language) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrLanguageNotSupported, language)
	}

	entryPoint, err := ExtractEntryPoint(source, language)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Results: make([]TestResult, 0, len(cases))}
	start := time.Now()

	for i, tc := range cases {
		result := s.runTestCase(ctx, source, entryPoint, i, tc)
		outcome.Results = append(outcome.Results, result)
		if result.Passed {
			outcome.TotalPassed++
		} else {
			outcome.TotalFailed++
		}
	}

	outcome.ExecutionTimeMs = time.Since(start).Milliseconds()
	return outcome, nil
}

func (s *Sandbox) runTestCase(ctx context.Context, source, entryPoint string, index int, tc TestCase) TestResult {
	started := time.Now()
	result := TestResult{
		TestCaseIndex:  index,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Verdict:        VerdictRuntimeError,
	}

	workspace, err := os.MkdirTemp(s.cfg.WorkspaceRoot, "judge-case-")
	if err != nil {
		result.Error = fmt.Sprintf("create workspace: %v", err)
		return result
	}
	defer os.RemoveAll(workspace)

	wrapped := wrapJavaScript(source, entryPoint, tc.Input)
	if err := os.WriteFile(filepath.Join(workspace, "main.js"), []byte(wrapped), 0600); err != nil {
		result.Error = fmt.Sprintf("write source: %v", err)
		return result
	}

	run, err := s.runner.Run(ctx, ContainerRequest{
		Image:         s.cfg.Image,
		Cmd:           []string{"node", "main.js"},
		Timeout:       s.cfg.TestCaseTimeout,
		Workspace:     workspace,
		WorkingDir:    "/workspace",
		MemoryLimitMB: s.cfg.MemoryLimitMB,
		CPUShares:     s.cfg.CPUShares,
	})
	result.ExecutionTimeMs = time.Since(started).Milliseconds()

	switch {
	case run.TimedOut:
		result.Error = "Time Limit Exceeded"
		result.Verdict = VerdictTimeLimitExceeded
	case err != nil:
		result.Error = err.Error()
	case run.ExitCode != 0:
		result.Error = strings.TrimSpace(run.Stderr)
		if result.Error == "" {
			result.Error = fmt.Sprintf("process exited with code %d", run.ExitCode)
		}
	default:
		actual := strings.TrimSpace(run.Stdout)
		result.ActualOutput = actual
		result.Passed = Compare(tc.ExpectedOutput, actual)
		if result.Passed {
			result.Verdict = VerdictAccepted
		} else {
			result.Verdict = VerdictWrongAnswer
		}
	}

	return result
}

// wrapJavaScript declares the user source, then invokes the entry point with
// the test case's raw input text spliced verbatim as the argument list. The
// question author owns the input's argument syntax (e.g. "[2,7,11,15], 9").
func wrapJavaScript(source, entryPoint, input string) string {
	return fmt.Sprintf(`%s

const __result = %s(%s);
if (__result !== null && typeof __result === "object") {
  process.stdout.write(JSON.stringify(__result));
} else {
  process.stdout.write(String(__result));
}
`, source, entryPoint, input)
}
