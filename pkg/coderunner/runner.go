package coderunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request describes one graded run.
type Request struct {
	Language     string
	Source       string
	FunctionName string
	Tests        []TestCase
	// Timeout bounds the whole batch. Nil selects the language default; zero
	// or a negative value disables the deadline.
	Timeout *time.Duration
	// Console, when set, receives console lines live as the host emits them.
	Console ConsoleSink
}

// Timeout returns d as a Request timeout.
func Timeout(d time.Duration) *time.Duration {
	return &d
}

// Config wires execution backends into a Runner.
type Config struct {
	Backends map[Language]Backend
	Timeouts map[Language]time.Duration
	Logger   zerolog.Logger
}

// Runner grades submissions against example test cases.
type Runner struct {
	backends map[Language]Backend
	timeouts map[Language]time.Duration
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewRunner constructs a Runner over the configured backends.
func NewRunner(cfg Config) *Runner {
	backends := make(map[Language]Backend, len(cfg.Backends))
	for lang, backend := range cfg.Backends {
		if backend != nil {
			backends[lang] = backend
		}
	}
	timeouts := make(map[Language]time.Duration, len(cfg.Timeouts))
	for lang, timeout := range cfg.Timeouts {
		timeouts[lang] = timeout
	}

	return &Runner{
		backends: backends,
		timeouts: timeouts,
		logger:   cfg.Logger.With().Str("component", "coderunner").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/codemeet-api/pkg/coderunner"),
	}
}

// Supports reports whether a backend is registered for the language.
func (r *Runner) Supports(lang Language) bool {
	_, ok := r.backends[lang]
	return ok
}

// TimeoutFor returns the batch budget used when a request leaves it unset.
func (r *Runner) TimeoutFor(lang Language) time.Duration {
	if timeout, ok := r.timeouts[lang]; ok && timeout > 0 {
		return timeout
	}
	return DefaultTimeout(lang)
}

// Run executes every test case in one batch. Test failures, load failures,
// timeouts and unsupported languages are all reported inside the RunReport;
// an error is returned only when no execution host could be created or the
// caller cancelled ctx.
func (r *Runner) Run(ctx context.Context, req Request) (RunReport, error) {
	start := time.Now()
	report := RunReport{Results: []TestResult{}, Console: []string{}}

	lang, err := ParseLanguage(req.Language)
	if err == nil && !r.Supports(lang) {
		err = ErrUnsupportedLanguage
	}
	if err != nil {
		report.Error = fmt.Sprintf("Unsupported language: %s", req.Language)
		report.ErrorKind = ErrorKindUnsupportedLanguage
		report.Duration = time.Since(start)
		observeRun("unknown", report)
		return report, nil
	}

	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Str("language", lang.String()).Logger()

	ctx, span := r.tracer.Start(ctx, "coderunner.run", trace.WithAttributes(
		attribute.String("coderunner.language", lang.String()),
		attribute.Int("coderunner.tests", len(req.Tests)),
	))
	defer span.End()

	signature := DetectSignature(lang, req.Source, req.FunctionName)
	job, bindErrors := buildJob(runID, req.Source, signature, req.Tests)

	timeout := r.TimeoutFor(lang)
	if req.Timeout != nil {
		timeout = *req.Timeout
	}

	backend := r.backends[lang]
	host, err := backend.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "host unavailable")
		logger.Error().Err(err).Msg("failed to acquire execution host")
		return report, fmt.Errorf("acquire %s host: %w", lang, err)
	}

	console := newConsoleCollector(req.Console)
	outcomes, err := WithDeadline(ctx, timeout, func(ctx context.Context) ([]Outcome, error) {
		return host.Execute(ctx, job, console.add)
	}, func() {
		if killErr := host.Kill(); killErr != nil {
			logger.Warn().Err(killErr).Msg("failed to kill execution host")
		}
	})
	report.Console = console.seal()

	var (
		timeoutErr *TimeoutError
		loadErr    *LoadError
	)
	switch {
	case err == nil:
		backend.Release(host, true)
		report.Results = grade(req.Tests, outcomes, bindErrors)
	case errors.As(err, &timeoutErr):
		go backend.Release(host, false)
		report.Error = timeoutErr.Error()
		report.ErrorKind = ErrorKindTimeout
	case errors.As(err, &loadErr):
		backend.Release(host, true)
		report.Error = loadErr.Message
		report.ErrorKind = ErrorKindLoad
	case errors.Is(err, ErrHostCrashed):
		backend.Release(host, false)
		report.Error = err.Error()
		report.ErrorKind = ErrorKindCrash
	default:
		go backend.Release(host, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	report.Duration = time.Since(start)
	observeRun(lang.String(), report)

	if report.Error != "" {
		span.SetStatus(codes.Error, string(report.ErrorKind))
	}
	span.SetAttributes(attribute.Bool("coderunner.passed", report.Passed()))

	logger.Info().
		Dur("duration", report.Duration).
		Int("tests", len(report.Results)).
		Str("error_kind", string(report.ErrorKind)).
		Bool("passed", report.Passed()).
		Msg("code run finished")

	return report, nil
}

// Close releases every backend.
func (r *Runner) Close() error {
	var errs []error
	for _, backend := range r.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildJob(id, source string, signature Signature, tests []TestCase) (Job, map[int]error) {
	job := Job{
		ID:          id,
		Source:      source,
		Function:    signature.Name,
		Params:      signature.ParamNames,
		Invocations: make([]Invocation, 0, len(tests)),
	}
	bindErrors := make(map[int]error)
	for i, tc := range tests {
		args, err := BindArguments(tc.Input, signature.ParamNames)
		if err != nil {
			bindErrors[i] = err
			continue
		}
		job.Invocations = append(job.Invocations, Invocation{Index: i, Args: args})
	}
	return job, bindErrors
}

func grade(tests []TestCase, outcomes []Outcome, bindErrors map[int]error) []TestResult {
	byIndex := make(map[int]Outcome, len(outcomes))
	for _, outcome := range outcomes {
		byIndex[outcome.Index] = outcome
	}

	results := make([]TestResult, 0, len(tests))
	for i, tc := range tests {
		result := TestResult{Expected: tc.Expected}
		if bindErr, ok := bindErrors[i]; ok {
			result.Error = bindErr.Error()
			results = append(results, result)
			continue
		}
		outcome, ok := byIndex[i]
		switch {
		case !ok:
			result.Error = "no result reported for test case"
		case !outcome.OK:
			result.Error = outcome.Error
			if result.Error == "" {
				result.Error = "test case failed without an error message"
			}
		default:
			result.Actual = outcome.Actual
			result.Passed = Compare(outcome.Actual, tc.Expected, outcome.Structured)
		}
		results = append(results, result)
	}
	return results
}

// consoleCollector merges console lines in arrival order. Once sealed, late
// lines from a killed host are dropped.
type consoleCollector struct {
	mu     sync.Mutex
	lines  []string
	sealed bool
	sink   ConsoleSink
}

func newConsoleCollector(sink ConsoleSink) *consoleCollector {
	return &consoleCollector{lines: []string{}, sink: sink}
}

func (c *consoleCollector) add(line ConsoleLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.lines = append(c.lines, line.Text)
	if c.sink != nil {
		c.sink(line)
	}
}

func (c *consoleCollector) seal() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return append([]string{}, c.lines...)
}
