package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/internal/utils"
)

// RoomHandler exposes room and room feedback endpoints.
type RoomHandler struct {
	rooms    service.RoomService
	comments service.CommentService
	logger   zerolog.Logger
}

// NewRoomHandler builds a new room handler.
func NewRoomHandler(rooms service.RoomService, comments service.CommentService, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		comments: comments,
		logger:   logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.listAll)
	router.Get("/mine", h.listMine)
	router.Get("/stream/:callId", h.getByStreamCall)
	router.Get("/:id", h.get)
	router.Patch("/:id/status", h.updateStatus)
	router.Get("/:id/comments", h.listComments)
	router.Post("/:id/comments", h.addComment)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateRoomRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	room, err := h.rooms.Create(requestContext(c), subjectFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create room")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) listAll(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListAll(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list rooms")
	}
	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *RoomHandler) listMine(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListMine(requestContext(c), subjectFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list rooms")
	}
	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *RoomHandler) getByStreamCall(c *fiber.Ctx) error {
	callID := strings.TrimSpace(c.Params("callId"))
	room, err := h.rooms.GetByStreamCallID(requestContext(c), callID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load room")
	}
	return utils.SendSuccess(c, "room retrieved", room)
}

func (h *RoomHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	room, err := h.rooms.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load room")
	}
	return utils.SendSuccess(c, "room retrieved", room)
}

func (h *RoomHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	var payload dto.UpdateRoomStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	room, err := h.rooms.UpdateStatus(requestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update room status")
	}
	return utils.SendSuccess(c, "room status updated", room)
}

func (h *RoomHandler) listComments(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	comments, err := h.comments.ListByRoom(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list comments")
	}
	return utils.SendSuccess(c, "comments retrieved", comments)
}

func (h *RoomHandler) addComment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	var payload dto.AddCommentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	comment, err := h.comments.Add(requestContext(c), subjectFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to add comment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment added", comment)
}
