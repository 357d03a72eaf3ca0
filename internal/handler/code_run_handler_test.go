package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/handler"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/pkg/coderunner"
)

type stubCodeRunService struct {
	report       dto.CodeRunResponse
	submit       dto.SubmitQuestionResponse
	err          error
	console      []coderunner.ConsoleLine
	lastSubject  string
	lastRequest  dto.CodeRunRequest
	lastQuestion uint
}

func (s *stubCodeRunService) Run(_ context.Context, subject string, payload dto.CodeRunRequest, sink coderunner.ConsoleSink) (dto.CodeRunResponse, error) {
	s.lastSubject = subject
	s.lastRequest = payload
	if s.err != nil {
		return dto.CodeRunResponse{}, s.err
	}
	for _, line := range s.console {
		if sink != nil {
			sink(line)
		}
	}
	return s.report, nil
}

func (s *stubCodeRunService) Submit(_ context.Context, subject string, questionID uint, _ dto.SubmitQuestionRequest) (dto.SubmitQuestionResponse, error) {
	s.lastSubject = subject
	s.lastQuestion = questionID
	if s.err != nil {
		return dto.SubmitQuestionResponse{}, s.err
	}
	return s.submit, nil
}

func newCodeRunApp(svc service.CodeRunService) *fiber.App {
	app := fiber.New()
	h := handler.NewCodeRunHandler(svc, zerolog.Nop())
	h.Register(app.Group("/api/v1/code", authenticated("user_1", "student")))
	h.RegisterSubmit(app.Group("/api/v1/questions", authenticated("user_1", "student")))
	return app
}

const runBody = `{"language":"javascript","source":"function add(a, b) { return a + b; }","function_name":"add","tests":[{"input":"a = 1, b = 2","expected":"3"}]}`

func TestCodeRunHandlerReturnsReport(t *testing.T) {
	svc := &stubCodeRunService{report: dto.CodeRunResponse{
		Results: []coderunner.TestResult{{Passed: true, Actual: "3", Expected: "3"}},
		Console: []string{},
		Passed:  true,
	}}
	app := newCodeRunApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/code/run", strings.NewReader(runBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	var report dto.CodeRunResponse
	require.NoError(t, json.Unmarshal(payload.Data, &report))
	require.True(t, report.Passed)
	require.Len(t, report.Results, 1)
	require.Equal(t, "user_1", svc.lastSubject)
	require.Equal(t, "add", svc.lastRequest.FunctionName)
}

func TestCodeRunHandlerRunLevelErrorsStayOK(t *testing.T) {
	svc := &stubCodeRunService{report: dto.CodeRunResponse{
		Results:   []coderunner.TestResult{},
		Console:   []string{"before loop"},
		Error:     "Execution timed out after 8000ms",
		ErrorKind: string(coderunner.ErrorKindTimeout),
	}}
	app := newCodeRunApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/code/run", strings.NewReader(runBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report dto.CodeRunResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &report))
	require.Equal(t, "timeout", report.ErrorKind)
	require.Equal(t, []string{"before loop"}, report.Console)
}

func TestCodeRunHandlerValidationFailure(t *testing.T) {
	validationErr := validator.New().Struct(dto.CodeRunRequest{})
	require.Error(t, validationErr)
	app := newCodeRunApp(&stubCodeRunService{err: validationErr})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/code/run", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.Equal(t, "validation failed", payload.Message)
	require.Contains(t, payload.Details, "CodeRunRequest.Language")
}

func TestCodeRunHandlerHostUnavailable(t *testing.T) {
	app := newCodeRunApp(&stubCodeRunService{err: fmt.Errorf("%w: node missing", service.ErrRunnerUnavailable)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/code/run", strings.NewReader(runBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestCodeRunHandlerSubmit(t *testing.T) {
	svc := &stubCodeRunService{submit: dto.SubmitQuestionResponse{
		CodeRunResponse: dto.CodeRunResponse{Passed: true, Results: []coderunner.TestResult{{Passed: true}}, Console: []string{}},
		QuestionID:      5,
		Solved:          true,
	}}
	app := newCodeRunApp(svc)

	body := `{"language":"python","source":"def solve(x):\n    return x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/5/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result dto.SubmitQuestionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &result))
	require.True(t, result.Solved)
	require.Equal(t, uint(5), svc.lastQuestion)
}

func TestCodeRunHandlerSubmitUnknownQuestion(t *testing.T) {
	app := newCodeRunApp(&stubCodeRunService{err: service.ErrQuestionNotFound})

	body := `{"language":"python","source":"def solve(x):\n    return x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/77/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCodeRunHandlerWebsocketRequiresUpgrade(t *testing.T) {
	app := newCodeRunApp(&stubCodeRunService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/code/ws", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestCodeRunHandlerWebsocketStreamsConsoleThenReport(t *testing.T) {
	svc := &stubCodeRunService{
		console: []coderunner.ConsoleLine{
			{Case: 0, Stream: "log", Text: "first"},
			{Case: 0, Stream: "log", Text: "second"},
		},
		report: dto.CodeRunResponse{
			Results: []coderunner.TestResult{{Passed: true, Actual: "3", Expected: "3"}},
			Console: []string{"first", "second"},
			Passed:  true,
		},
	}
	addr := startFiberServer(t, newCodeRunApp(svc))

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	var (
		conn *websocket.Conn
		err  error
	)
	require.Eventually(t, func() bool {
		conn, _, err = dialer.Dial("ws://"+addr+"/api/v1/code/ws", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(runBody)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []dto.CodeRunFrame
	for {
		var frame dto.CodeRunFrame
		if err := conn.ReadJSON(&frame); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		frames = append(frames, frame)
	}

	require.Len(t, frames, 3)
	require.Equal(t, dto.FrameConsole, frames[0].Type)
	require.Equal(t, "first", frames[0].Line.Text)
	require.Equal(t, "second", frames[1].Line.Text)
	require.Equal(t, dto.FrameReport, frames[2].Type)
	require.NotNil(t, frames[2].Report)
	require.True(t, frames[2].Report.Passed)
}

func TestCodeRunHandlerWebsocketReportsErrors(t *testing.T) {
	svc := &stubCodeRunService{err: fmt.Errorf("%w: docker down", service.ErrRunnerUnavailable)}
	addr := startFiberServer(t, newCodeRunApp(svc))

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	var (
		conn *websocket.Conn
		err  error
	)
	require.Eventually(t, func() bool {
		conn, _, err = dialer.Dial("ws://"+addr+"/api/v1/code/ws", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(runBody)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame dto.CodeRunFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, dto.FrameError, frame.Type)
	require.Equal(t, service.ErrRunnerUnavailable.Error(), frame.Error)
}
