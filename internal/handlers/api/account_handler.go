package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/roadworks/authd/internal/auth"
	"github.com/roadworks/authd/internal/identity"
	"github.com/roadworks/authd/model"
)

type PolicyReloader interface {
	Reload(ctx context.Context) error
}

// AccountHandler exposes the administrative account surface. The sync
// service is optional; when the identity provider is not configured the
// import endpoint answers 503.
type AccountHandler struct {
	engine       *auth.Engine
	sync         *identity.SyncService
	policyReload PolicyReloader
}

func NewAccountHandler(engine *auth.Engine, sync *identity.SyncService, policyReload PolicyReloader) *AccountHandler {
	return &AccountHandler{
		engine:       engine,
		sync:         sync,
		policyReload: policyReload,
	}
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	// optional; when set and the identity provider is configured the new
	// account is also pushed remotely
	Email string `json:"email"`
}

func (h *AccountHandler) PostCreateAccount(ctx *fiber.Ctx) error {
	var req createAccountRequest
	if err := ctx.BodyParser(&req); err != nil || req.Username == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing username or password"),
		)
	}

	account, err := h.engine.CreateAccount(ctx.Context(), req.Username, req.Password, model.Role(req.Role), clientContext(ctx))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUsername):
			return ctx.Status(fiber.StatusConflict).JSON(
				NewErrorResponse(fiber.StatusConflict, "An account with this username already exists"),
			)
		case errors.Is(err, auth.ErrInvalidRole):
			return ctx.Status(fiber.StatusBadRequest).JSON(
				NewErrorResponse(fiber.StatusBadRequest, "Invalid role"),
			)
		default:
			slog.Error("Account creation failed", "error", err)
			return internalError(ctx)
		}
	}

	if h.sync != nil && req.Email != "" {
		// local creation stands even when the remote push fails
		if err := h.sync.PushAccount(ctx.Context(), account.ID, req.Email, req.Password); err != nil {
			slog.Warn("Remote identity push failed", "username", req.Username, "error", err)
		}
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(account))
}

func (h *AccountHandler) GetAccounts(ctx *fiber.Ctx) error {
	return h.respondList(ctx, h.engine.ListAccounts)
}

func (h *AccountHandler) GetLockedAccounts(ctx *fiber.Ctx) error {
	return h.respondList(ctx, h.engine.ListLockedAccounts)
}

func (h *AccountHandler) GetUnlinkedAccounts(ctx *fiber.Ctx) error {
	return h.respondList(ctx, h.engine.ListUnlinkedAccounts)
}

func (h *AccountHandler) GetAccount(ctx *fiber.Ctx) error {
	id, err := parseAccountID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Invalid account id"),
		)
	}
	account, err := h.engine.GetAccount(ctx.Context(), id)
	if errors.Is(err, auth.ErrAccountNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse(fiber.StatusNotFound, "Account not found"),
		)
	}
	if err != nil {
		slog.Error("Account lookup failed", "error", err)
		return internalError(ctx)
	}
	return ctx.JSON(NewDataResponse(account))
}

func (h *AccountHandler) PostUnlockAccount(ctx *fiber.Ctx) error {
	id, err := parseAccountID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Invalid account id"),
		)
	}
	account, err := h.engine.UnlockAccount(ctx.Context(), id, clientContext(ctx))
	if errors.Is(err, auth.ErrAccountNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse(fiber.StatusNotFound, "Account not found"),
		)
	}
	if err != nil {
		slog.Error("Account unlock failed", "error", err)
		return internalError(ctx)
	}
	return ctx.JSON(NewDataResponse(account))
}

func (h *AccountHandler) PostImportRemote(ctx *fiber.Ctx) error {
	if h.sync == nil {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(
			NewErrorResponse(fiber.StatusServiceUnavailable, "Identity provider is not configured"),
		)
	}
	summary, err := h.sync.ImportFromRemote(ctx.Context())
	if err != nil {
		slog.Error("Remote import failed", "error", err)
		return ctx.Status(fiber.StatusBadGateway).JSON(
			NewErrorResponse(fiber.StatusBadGateway, "Identity provider unavailable"),
		)
	}
	return ctx.JSON(NewDataResponse(summary))
}

func (h *AccountHandler) PostReloadPolicy(ctx *fiber.Ctx) error {
	if err := h.policyReload.Reload(ctx.Context()); err != nil {
		slog.Error("Policy reload failed", "error", err)
		return internalError(ctx)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AccountHandler) respondList(ctx *fiber.Ctx, fetch func(context.Context) ([]auth.AccountSummary, error)) error {
	list, err := fetch(ctx.Context())
	if err != nil {
		slog.Error("Account listing failed", "error", err)
		return internalError(ctx)
	}
	return ctx.JSON(NewDataResponse(list))
}

func parseAccountID(ctx *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	return uint(id), err
}
