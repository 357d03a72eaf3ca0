package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/middleware"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/internal/utils"
)

// AccountHandler exposes account endpoints.
type AccountHandler struct {
	service service.AccountService
	logger  zerolog.Logger
}

// NewAccountHandler builds a new account handler.
func NewAccountHandler(service service.AccountService, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		logger:  logger.With().Str("component", "account_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *AccountHandler) Register(router fiber.Router) {
	requireUser := middleware.AuthOptions{RequireUser: true}
	router.Post("/sync", middleware.WithAuth(h.sync, requireUser))
	router.Get("", h.list)
	router.Get("/me", middleware.WithAuth(h.me, requireUser))
	router.Get("/:subject", h.get)
	router.Patch("/:subject/role", h.setRole)
}

func (h *AccountHandler) sync(c *fiber.Ctx) error {
	var payload dto.SyncAccountRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	result, err := h.service.Sync(requestContext(c), subjectFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to sync account")
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, "account synced", result)
}

func (h *AccountHandler) list(c *fiber.Ctx) error {
	accounts, err := h.service.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list accounts")
	}
	return utils.SendSuccess(c, "accounts retrieved", accounts)
}

func (h *AccountHandler) me(c *fiber.Ctx) error {
	account, err := h.service.GetBySubject(requestContext(c), subjectFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load account")
	}
	return utils.SendSuccess(c, "account retrieved", account)
}

func (h *AccountHandler) get(c *fiber.Ctx) error {
	account, err := h.service.GetBySubject(requestContext(c), strings.TrimSpace(c.Params("subject")))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load account")
	}
	return utils.SendSuccess(c, "account retrieved", account)
}

func (h *AccountHandler) setRole(c *fiber.Ctx) error {
	var payload dto.UpdateRoleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request body", nil)
	}

	target := strings.TrimSpace(c.Params("subject"))
	account, err := h.service.SetRole(requestContext(c), subjectFromContext(c), target, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update role")
	}
	return utils.SendSuccess(c, "role updated", account)
}
