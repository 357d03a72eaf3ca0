package coderunner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubHost struct {
	execute func(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error)
	killed  chan struct{}
	once    sync.Once
	lastJob Job
}

func newStubHost(execute func(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error)) *stubHost {
	return &stubHost{execute: execute, killed: make(chan struct{})}
}

func (h *stubHost) Execute(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error) {
	h.lastJob = job
	return h.execute(ctx, job, sink)
}

func (h *stubHost) Kill() error {
	h.once.Do(func() { close(h.killed) })
	return nil
}

type stubBackend struct {
	mu         sync.Mutex
	host       *stubHost
	acquireErr error
	released   []bool
}

func (b *stubBackend) Acquire(context.Context) (Host, error) {
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	return b.host, nil
}

func (b *stubBackend) Release(_ Host, reusable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, reusable)
}

func (b *stubBackend) Close() error { return nil }

func (b *stubBackend) releases() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.released...)
}

func newStubRunner(backend Backend) *Runner {
	return NewRunner(Config{
		Backends: map[Language]Backend{LanguageJavaScript: backend},
		Logger:   zerolog.Nop(),
	})
}

func TestRunnerGradesOutcomes(t *testing.T) {
	host := newStubHost(func(_ context.Context, job Job, sink ConsoleSink) ([]Outcome, error) {
		sink(ConsoleLine{Case: 0, Stream: "stdout", Text: "A"})
		sink(ConsoleLine{Case: 1, Stream: "stdout", Text: "B"})
		return []Outcome{
			{Index: 0, OK: true, Actual: "[0,1]", Structured: true},
			{Index: 1, OK: true, Actual: "[2,1]", Structured: true},
			{Index: 2, OK: false, Error: "TypeError: nums is not iterable"},
		}, nil
	})
	backend := &stubBackend{host: host}
	runner := newStubRunner(backend)

	var live []string
	report, err := runner.Run(context.Background(), Request{
		Language:     "js",
		Source:       "function twoSum(nums, target) { return [] }",
		FunctionName: "twoSum",
		Tests: []TestCase{
			{Input: "nums = [2,7,11,15], target = 9", Expected: "[0,1]"},
			{Input: "nums = [3,2,4], target = 6", Expected: "[1,2]"},
			{Input: "nums = null, target = 1", Expected: "[]"},
		},
		Console: func(line ConsoleLine) { live = append(live, line.Text) },
	})
	require.NoError(t, err)
	require.Empty(t, report.Error)
	require.Equal(t, []string{"A", "B"}, report.Console)
	require.Equal(t, []string{"A", "B"}, live)

	require.Equal(t, []TestResult{
		{Passed: true, Actual: "[0,1]", Expected: "[0,1]"},
		{Passed: false, Actual: "[2,1]", Expected: "[1,2]"},
		{Passed: false, Expected: "[]", Error: "TypeError: nums is not iterable"},
	}, report.Results)
	require.False(t, report.Passed())
	require.Equal(t, []bool{true}, backend.releases())

	require.Equal(t, "twoSum", host.lastJob.Function)
	require.Equal(t, []string{"nums", "target"}, host.lastJob.Params)
	require.Len(t, host.lastJob.Invocations, 3)
	require.Equal(t, []any{[]any{json.Number("2"), json.Number("7"), json.Number("11"), json.Number("15")}, json.Number("9")}, host.lastJob.Invocations[0].Args)
}

func TestRunnerRecordsBindingFailuresPerTest(t *testing.T) {
	host := newStubHost(func(_ context.Context, job Job, _ ConsoleSink) ([]Outcome, error) {
		outcomes := make([]Outcome, 0, len(job.Invocations))
		for _, inv := range job.Invocations {
			outcomes = append(outcomes, Outcome{Index: inv.Index, OK: true, Actual: "1", Structured: true})
		}
		return outcomes, nil
	})
	runner := newStubRunner(&stubBackend{host: host})

	report, err := runner.Run(context.Background(), Request{
		Language:     "javascript",
		Source:       "function f(n) { return 1 }",
		FunctionName: "f",
		Tests: []TestCase{
			{Input: "n = Math.max(1, 2)", Expected: "1"},
			{Input: "n = 2", Expected: "1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.False(t, report.Results[0].Passed)
	require.Contains(t, report.Results[0].Error, "unsupported argument expression")
	require.True(t, report.Results[1].Passed)
	require.Len(t, host.lastJob.Invocations, 1)
	require.Equal(t, 1, host.lastJob.Invocations[0].Index)
}

func TestRunnerLoadFailure(t *testing.T) {
	host := newStubHost(func(_ context.Context, _ Job, sink ConsoleSink) ([]Outcome, error) {
		sink(ConsoleLine{Case: -1, Stream: "stdout", Text: "top level"})
		return nil, &LoadError{Message: "SyntaxError: Unexpected token"}
	})
	backend := &stubBackend{host: host}
	runner := newStubRunner(backend)

	report, err := runner.Run(context.Background(), Request{
		Language: "javascript",
		Source:   "function (",
		Tests:    []TestCase{{Input: "1", Expected: "1"}},
	})
	require.NoError(t, err)
	require.Equal(t, ErrorKindLoad, report.ErrorKind)
	require.Equal(t, "SyntaxError: Unexpected token", report.Error)
	require.Empty(t, report.Results)
	require.Equal(t, []string{"top level"}, report.Console)
	require.Equal(t, []bool{true}, backend.releases())
}

func TestRunnerTimeoutKillsHost(t *testing.T) {
	host := newStubHost(nil)
	host.execute = func(_ context.Context, _ Job, sink ConsoleSink) ([]Outcome, error) {
		sink(ConsoleLine{Case: 0, Stream: "stdout", Text: "spinning"})
		<-host.killed
		sink(ConsoleLine{Case: 0, Stream: "stdout", Text: "after kill"})
		return nil, ErrHostCrashed
	}
	backend := &stubBackend{host: host}
	runner := newStubRunner(backend)

	start := time.Now()
	report, err := runner.Run(context.Background(), Request{
		Language: "javascript",
		Source:   "function f() { while (true) {} }",
		Tests:    []TestCase{{Input: "", Expected: "1"}},
		Timeout:  Timeout(100 * time.Millisecond),
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, ErrorKindTimeout, report.ErrorKind)
	require.Equal(t, "Execution timed out after 100ms", report.Error)
	require.Empty(t, report.Results)
	require.Equal(t, []string{"spinning"}, report.Console)
	require.Eventually(t, func() bool {
		return len(backend.releases()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []bool{false}, backend.releases())
}

func TestRunnerCrashIsRunLevel(t *testing.T) {
	host := newStubHost(func(context.Context, Job, ConsoleSink) ([]Outcome, error) {
		return nil, ErrHostCrashed
	})
	backend := &stubBackend{host: host}
	runner := newStubRunner(backend)

	report, err := runner.Run(context.Background(), Request{Language: "javascript", Source: "process.exit(1)"})
	require.NoError(t, err)
	require.Equal(t, ErrorKindCrash, report.ErrorKind)
	require.Equal(t, []bool{false}, backend.releases())
}

func TestRunnerUnsupportedLanguage(t *testing.T) {
	runner := newStubRunner(&stubBackend{})

	report, err := runner.Run(context.Background(), Request{Language: "cobol", Source: "DISPLAY 'HI'."})
	require.NoError(t, err)
	require.Equal(t, ErrorKindUnsupportedLanguage, report.ErrorKind)
	require.Equal(t, "Unsupported language: cobol", report.Error)

	report, err = runner.Run(context.Background(), Request{Language: "python", Source: "pass"})
	require.NoError(t, err)
	require.Equal(t, ErrorKindUnsupportedLanguage, report.ErrorKind)
}

func TestRunnerHostUnavailable(t *testing.T) {
	runner := newStubRunner(&stubBackend{acquireErr: ErrHostUnavailable})

	_, err := runner.Run(context.Background(), Request{Language: "javascript", Source: "1"})
	require.ErrorIs(t, err, ErrHostUnavailable)
}

func TestRunnerUsesConfiguredTimeouts(t *testing.T) {
	runner := NewRunner(Config{
		Timeouts: map[Language]time.Duration{LanguagePython: 5 * time.Second},
		Logger:   zerolog.Nop(),
	})
	require.Equal(t, 5*time.Second, runner.TimeoutFor(LanguagePython))
	require.Equal(t, 8*time.Second, runner.TimeoutFor(LanguageJavaScript))
}

func TestRunnerTimeoutSelection(t *testing.T) {
	slow := func() *stubBackend {
		return &stubBackend{host: newStubHost(func(ctx context.Context, _ Job, _ ConsoleSink) ([]Outcome, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return []Outcome{{Index: 0, OK: true, Actual: "1", Structured: true}}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})}
	}
	newRunner := func(backend Backend) *Runner {
		return NewRunner(Config{
			Backends: map[Language]Backend{LanguageJavaScript: backend},
			Timeouts: map[Language]time.Duration{LanguageJavaScript: 50 * time.Millisecond},
			Logger:   zerolog.Nop(),
		})
	}
	tests := []TestCase{{Input: "", Expected: "1"}}

	report, err := newRunner(slow()).Run(context.Background(), Request{Language: "javascript", Source: "f", Tests: tests})
	require.NoError(t, err)
	require.Equal(t, ErrorKindTimeout, report.ErrorKind)
	require.Equal(t, "Execution timed out after 50ms", report.Error)

	for _, disabled := range []time.Duration{0, -time.Second} {
		report, err = newRunner(slow()).Run(context.Background(), Request{
			Language: "javascript",
			Source:   "f",
			Tests:    tests,
			Timeout:  Timeout(disabled),
		})
		require.NoError(t, err)
		require.Empty(t, report.Error, "timeout %s", disabled)
		require.True(t, report.Passed())
	}
}

func TestRunReportPassed(t *testing.T) {
	require.False(t, RunReport{}.Passed())
	require.False(t, RunReport{Results: []TestResult{{Passed: true}}, Error: "x"}.Passed())
	require.True(t, RunReport{Results: []TestResult{{Passed: true}, {Passed: true}}}.Passed())
}
