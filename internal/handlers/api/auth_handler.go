package api

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/roadworks/authd/internal/auth"
)

type AuthHandler struct {
	engine *auth.Engine
}

func NewAuthHandler(engine *auth.Engine) *AuthHandler {
	return &AuthHandler{engine: engine}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Account   auth.AccountSummary `json:"account"`
}

type validateResponse struct {
	Valid   bool                 `json:"valid"`
	Account *auth.AccountSummary `json:"account,omitempty"`
}

func clientContext(ctx *fiber.Ctx) auth.ClientContext {
	return auth.ClientContext{
		IPAddress: ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	}
}

func bearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil || req.Username == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing username or password"),
		)
	}

	result, err := h.engine.Login(ctx.Context(), req.Username, req.Password, clientContext(ctx))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return ctx.Status(fiber.StatusUnauthorized).JSON(
				NewErrorResponse(fiber.StatusUnauthorized, "Invalid credentials"),
			)
		case errors.Is(err, auth.ErrAccountDisabled):
			return ctx.Status(fiber.StatusForbidden).JSON(
				NewErrorResponse(fiber.StatusForbidden, "This account is disabled"),
			)
		case errors.Is(err, auth.ErrAccountLocked):
			return ctx.Status(fiber.StatusLocked).JSON(
				NewErrorResponse(fiber.StatusLocked, "This account is locked. Contact an administrator."),
			)
		default:
			slog.Error("Login failed", "error", err)
			return internalError(ctx)
		}
	}

	return ctx.JSON(NewDataResponse(loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Account:   result.Account,
	}))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	token := bearerToken(ctx)
	if token == "" {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	if err := h.engine.Logout(ctx.Context(), token, clientContext(ctx)); err != nil {
		slog.Error("Logout failed", "error", err)
		return internalError(ctx)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) GetValidate(ctx *fiber.Ctx) error {
	account, err := h.engine.ValidateToken(ctx.Context(), bearerToken(ctx))
	if errors.Is(err, auth.ErrSessionInvalid) {
		return ctx.JSON(NewDataResponse(validateResponse{Valid: false}))
	}
	if err != nil {
		slog.Error("Token validation failed", "error", err)
		return internalError(ctx)
	}
	return ctx.JSON(NewDataResponse(validateResponse{Valid: true, Account: account}))
}

func (h *AuthHandler) GetMe(ctx *fiber.Ctx) error {
	account, err := h.engine.ValidateToken(ctx.Context(), bearerToken(ctx))
	if errors.Is(err, auth.ErrSessionInvalid) {
		return ctx.Status(fiber.StatusUnauthorized).JSON(
			NewErrorResponse(fiber.StatusUnauthorized, "Invalid or expired session"),
		)
	}
	if err != nil {
		slog.Error("Session lookup failed", "error", err)
		return internalError(ctx)
	}
	return ctx.JSON(NewDataResponse(account))
}

func internalError(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusInternalServerError).JSON(
		NewErrorResponse(fiber.StatusInternalServerError, "Internal server error"),
	)
}
