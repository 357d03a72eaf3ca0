package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/internal/utils"
)

// QuestionHandler exposes question bank endpoints.
type QuestionHandler struct {
	service service.QuestionService
	logger  zerolog.Logger
}

// NewQuestionHandler builds a new question handler.
func NewQuestionHandler(service service.QuestionService, logger zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		service: service,
		logger:  logger.With().Str("component", "question_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *QuestionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/solved", h.markSolved)
}

func (h *QuestionHandler) list(c *fiber.Ctx) error {
	questions, cacheHit, err := h.service.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to retrieve questions")
	}
	return utils.OK(c, questions, "questions retrieved", fiber.Map{"cache_hit": cacheHit})
}

func (h *QuestionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	question, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to retrieve question")
	}
	return utils.SendSuccess(c, "question retrieved", question)
}

func (h *QuestionHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	question, err := h.service.Create(requestContext(c), subjectFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create question")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question created", question)
}

func (h *QuestionHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	var payload dto.UpdateQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	question, err := h.service.Update(requestContext(c), subjectFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update question")
	}
	return utils.SendSuccess(c, service.MessageQuestionUpdated, question)
}

func (h *QuestionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	if err := h.service.Delete(requestContext(c), subjectFromContext(c), id); err != nil {
		return respondError(c, h.logger, err, "failed to delete question")
	}
	return utils.SendSuccess(c, service.MessageQuestionDeleted, fiber.Map{"id": id})
}

func (h *QuestionHandler) markSolved(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	result, err := h.service.MarkSolved(requestContext(c), subjectFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to mark question solved")
	}
	return utils.SendSuccess(c, result.Message, result)
}
