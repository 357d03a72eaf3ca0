package coderunner

import "time"

// TestCase pairs argument text with the expected result text.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// TestResult is the language independent report for one test case.
type TestResult struct {
	Passed   bool   `json:"passed"`
	Actual   string `json:"actual"`
	Expected string `json:"expected"`
	Error    string `json:"error,omitempty"`
}

// ErrorKind classifies run-level failures.
type ErrorKind string

const (
	ErrorKindLoad                ErrorKind = "load"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindUnsupportedLanguage ErrorKind = "unsupported_language"
	ErrorKindCrash               ErrorKind = "crash"
)

// RunReport is the outcome of a whole batch. Error is only set when the run
// itself could not complete, in which case Results is empty.
type RunReport struct {
	Results   []TestResult  `json:"results"`
	Console   []string      `json:"console"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Passed reports whether the run completed and every test case passed.
func (r RunReport) Passed() bool {
	if r.Error != "" || len(r.Results) == 0 {
		return false
	}
	for _, result := range r.Results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// ConsoleLine is a single line of output produced by sandboxed code.
type ConsoleLine struct {
	// Case is the index of the test case being executed, or -1 while loading.
	Case   int    `json:"case"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

// ConsoleSink receives console lines in the order the sandbox emits them.
type ConsoleSink func(ConsoleLine)

// Invocation is one bound call of the entry point.
type Invocation struct {
	Index int   `json:"index"`
	Args  []any `json:"args"`
}

// Job is the unit of work handed to an execution host. The source is loaded
// once and every invocation runs against the same loaded definitions.
type Job struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	Function    string       `json:"function"`
	Params      []string     `json:"params"`
	Invocations []Invocation `json:"invocations"`
}

// Outcome is the per-invocation result reported by a host.
type Outcome struct {
	Index      int
	OK         bool
	Actual     string
	Structured bool
	Error      string
	Console    []string
}
