package dto

import "github.com/noah-isme/codemeet-api/pkg/coderunner"

// TestCaseInput is one test case in a run request.
type TestCaseInput struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// CodeRunRequest asks for a source to be graded against test cases.
type CodeRunRequest struct {
	Language     string          `json:"language" validate:"required,max=32"`
	Source       string          `json:"source" validate:"required,max=65536"`
	FunctionName string          `json:"function_name" validate:"max=128"`
	Tests        []TestCaseInput `json:"tests" validate:"required,min=1,max=50,dive"`
	TimeoutMS    *int            `json:"timeout_ms" validate:"omitempty,min=1"`
}

// SubmitQuestionRequest grades a solution against a question's examples.
type SubmitQuestionRequest struct {
	Language     string `json:"language" validate:"required,max=32"`
	Source       string `json:"source" validate:"required,max=65536"`
	FunctionName string `json:"function_name" validate:"max=128"`
}

// CodeRunResponse is the API view of a run report.
type CodeRunResponse struct {
	Results    []coderunner.TestResult `json:"results"`
	Console    []string                `json:"console"`
	Error      string                  `json:"error,omitempty"`
	ErrorKind  string                  `json:"error_kind,omitempty"`
	Passed     bool                    `json:"passed"`
	DurationMS int64                   `json:"duration_ms"`
}

// SubmitQuestionResponse extends the run report with the solve outcome.
type SubmitQuestionResponse struct {
	CodeRunResponse
	QuestionID uint `json:"question_id"`
	Solved     bool `json:"solved"`
}

// CodeRunFrame is one websocket message sent while a run streams.
type CodeRunFrame struct {
	Type   string                  `json:"type"`
	Line   *coderunner.ConsoleLine `json:"line,omitempty"`
	Report *CodeRunResponse        `json:"report,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// Websocket frame types.
const (
	FrameConsole = "console"
	FrameReport  = "report"
	FrameError   = "error"
)

// ToTestCases converts request test cases for the runner.
func ToTestCases(tests []TestCaseInput) []coderunner.TestCase {
	out := make([]coderunner.TestCase, 0, len(tests))
	for _, tc := range tests {
		out = append(out, coderunner.TestCase{Input: tc.Input, Expected: tc.Expected})
	}
	return out
}

// NewCodeRunResponse builds the API view of a report.
func NewCodeRunResponse(report coderunner.RunReport) CodeRunResponse {
	results := report.Results
	if results == nil {
		results = []coderunner.TestResult{}
	}
	console := report.Console
	if console == nil {
		console = []string{}
	}
	return CodeRunResponse{
		Results:    results,
		Console:    console,
		Error:      report.Error,
		ErrorKind:  string(report.ErrorKind),
		Passed:     report.Passed(),
		DurationMS: report.Duration.Milliseconds(),
	}
}
