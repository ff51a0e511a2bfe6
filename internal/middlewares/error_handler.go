package middlewares

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	if code == fiber.StatusInternalServerError {
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(errorBody{Code: code, Message: message})
}
