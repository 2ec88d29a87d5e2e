package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/http/dto"
	"github.com/soasign/backend/internal/soaerr"
)

// writeError maps the service error taxonomy onto HTTP responses.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	if ve, ok := soaerr.AsValidation(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:  "validation failed",
			Fields: ve.Fields,
		})
	}
	switch {
	case errors.Is(err, soaerr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})
	case errors.Is(err, soaerr.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "forbidden"})
	case errors.Is(err, soaerr.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse{Error: dto.SignErrorExpired})
	case errors.Is(err, soaerr.ErrAlreadyUsed):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: dto.SignErrorAlreadyUsed})
	case errors.Is(err, soaerr.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "invalid status transition"})
	}
	if de, ok := soaerr.AsDelivery(err); ok {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: deliveryMessage(de)})
	}
	if soaerr.IsConfiguration(err) {
		log.Error("configuration error", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "document rendering is unavailable"})
	}

	log.Error("internal error", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}

func deliveryMessage(de *soaerr.DeliveryError) string {
	if de.Suppressed {
		return "recipient email address is suppressed, use a different address"
	}
	return "signing request delivery failed, try again later"
}
