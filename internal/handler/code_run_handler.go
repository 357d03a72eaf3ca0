package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/middleware"
	"github.com/noah-isme/codemeet-api/internal/observability"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/internal/utils"
	"github.com/noah-isme/codemeet-api/pkg/coderunner"
)

const (
	wsRequestWait = 30 * time.Second
	wsWriteWait   = 10 * time.Second
)

// CodeRunHandler exposes graded code runs over HTTP and websockets.
type CodeRunHandler struct {
	service service.CodeRunService
	logger  zerolog.Logger
}

// NewCodeRunHandler creates a code run handler instance.
func NewCodeRunHandler(service service.CodeRunService, logger zerolog.Logger) *CodeRunHandler {
	return &CodeRunHandler{
		service: service,
		logger:  logger.With().Str("component", "code_run_handler").Logger(),
	}
}

// Register binds the run endpoints under the provided router group.
func (h *CodeRunHandler) Register(router fiber.Router) {
	router.Post("/run", h.run)

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

// RegisterSubmit binds the question submission endpoint. handlers run before
// the submission, typically a rate limiter.
func (h *CodeRunHandler) RegisterSubmit(router fiber.Router, handlers ...fiber.Handler) {
	chain := append(append([]fiber.Handler{}, handlers...), h.submit)
	router.Post("/:id/submit", chain...)
}

func (h *CodeRunHandler) run(c *fiber.Ctx) error {
	var payload dto.CodeRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	report, err := h.service.Run(requestContext(c), subjectFromContext(c), payload, nil)
	if err != nil {
		return respondError(c, h.logger, err, "failed to run code")
	}
	return utils.SendSuccess(c, "code executed", report)
}

func (h *CodeRunHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	var payload dto.SubmitQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	result, err := h.service.Submit(requestContext(c), subjectFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit solution")
	}
	return utils.SendSuccess(c, "solution graded", result)
}

// frameWriter serializes writes; console lines arrive from the host reader
// goroutine while the final frame is written from the handler.
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *frameWriter) write(frame dto.CodeRunFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(frame)
}

func (w *frameWriter) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// handleConnection reads a single run request, streams console lines while
// the run executes and finishes with a report or error frame.
func (h *CodeRunHandler) handleConnection(conn *websocket.Conn) {
	subject := websocketSubject(conn)
	writer := &frameWriter{conn: conn}
	if subject == "" {
		writer.close(websocket.ClosePolicyViolation, "authentication required")
		return
	}

	observability.CodeStreamsActive().Inc()
	defer observability.CodeStreamsActive().Dec()

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	logger := h.logger.With().Str("subject", subject).Logger()

	var payload dto.CodeRunRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestWait))
	if err := conn.ReadJSON(&payload); err != nil {
		_ = writer.write(dto.CodeRunFrame{Type: dto.FrameError, Error: "invalid run request"})
		writer.close(websocket.CloseUnsupportedData, "invalid run request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// Any further read only returns once the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	logger.Info().Str("language", payload.Language).Int("tests", len(payload.Tests)).Msg("streaming code run started")

	report, err := h.service.Run(ctx, subject, payload, func(line coderunner.ConsoleLine) {
		current := line
		if writeErr := writer.write(dto.CodeRunFrame{Type: dto.FrameConsole, Line: &current}); writeErr != nil {
			cancel()
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("streaming code run cancelled by client")
			return
		}
		_ = writer.write(dto.CodeRunFrame{Type: dto.FrameError, Error: streamErrorMessage(err)})
		writer.close(websocket.CloseNormalClosure, "")
		return
	}

	_ = writer.write(dto.CodeRunFrame{Type: dto.FrameReport, Report: &report})
	writer.close(websocket.CloseNormalClosure, "")
	logger.Info().Bool("passed", report.Passed).Str("error_kind", report.ErrorKind).Msg("streaming code run finished")
}

func streamErrorMessage(err error) string {
	switch {
	case isValidationError(err):
		details := validationDetails(err)
		fields := make([]string, 0, len(details))
		for field, tag := range details {
			fields = append(fields, fmt.Sprintf("%s:%s", field, tag))
		}
		return "validation failed: " + strings.Join(fields, ", ")
	case errors.Is(err, service.ErrRunnerUnavailable):
		return service.ErrRunnerUnavailable.Error()
	default:
		return "failed to run code"
	}
}

func websocketSubject(conn *websocket.Conn) string {
	if value, ok := conn.Locals("user_id").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
