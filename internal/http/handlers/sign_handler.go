package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/http/dto"
	"github.com/soasign/backend/internal/services"
	"github.com/soasign/backend/internal/soaerr"
)

// markOpenedTimeout bounds the background opened-tracking write.
const markOpenedTimeout = 10 * time.Second

// SignHandler serves the unauthenticated token-gated signing endpoints.
// Responses never leak whether a token ever existed beyond the coded
// error, and every failure is structured.
type SignHandler struct {
	signingService *services.SigningService
	log            *zap.Logger
}

func NewSignHandler(signingService *services.SigningService, log *zap.Logger) *SignHandler {
	return &SignHandler{signingService: signingService, log: log}
}

func (h *SignHandler) Verify(c *fiber.Ctx) error {
	// Fiber recycles the request buffers backing Params/IP/Get once the
	// handler returns; anything the background goroutine reads must be
	// copied out first.
	token := utils.CopyString(c.Params("token"))

	rec, err := h.signingService.Verify(c.Context(), token)
	if err != nil {
		return h.writeVerifyError(c, err)
	}

	// Opened tracking must not delay or fail the page load.
	ip := utils.CopyString(c.IP())
	userAgent := utils.CopyString(c.Get("User-Agent"))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), markOpenedTimeout)
		defer cancel()
		h.signingService.MarkOpened(ctx, token, &ip, &userAgent)
	}()

	return c.JSON(dto.VerifyResponse{Valid: true, SOA: dto.NewSigningView(rec)})
}

func (h *SignHandler) Submit(c *fiber.Ctx) error {
	token := c.Params("token")

	var req dto.SubmitSignatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	// The signed record outlives the handler (the agent notice goroutine
	// holds it), so its ip/user-agent strings are copied too.
	ip := utils.CopyString(c.IP())
	userAgent := utils.CopyString(c.Get("User-Agent"))
	input := services.SubmitInput{
		TypedSignature:   req.TypedSignature,
		ProductsSelected: req.ProductsSelected,
		SignerType:       req.SignerType,
		RepName:          req.RepName,
		RepRelationship:  req.RepRelationship,
		IPAddress:        &ip,
		UserAgent:        &userAgent,
	}

	rec, err := h.signingService.Submit(c.Context(), token, input)
	if err != nil {
		if ve, ok := soaerr.AsValidation(err); ok {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:  "validation failed",
				Fields: ve.Fields,
			})
		}
		return h.writeVerifyError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"signed_at": rec.ClientSignedAt,
	}})
}

func (h *SignHandler) writeVerifyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, soaerr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.VerifyResponse{Error: dto.SignErrorNotFound})
	case errors.Is(err, soaerr.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(dto.VerifyResponse{Error: dto.SignErrorExpired})
	case errors.Is(err, soaerr.ErrAlreadyUsed):
		return c.Status(fiber.StatusGone).JSON(dto.VerifyResponse{Error: dto.SignErrorAlreadyUsed})
	case errors.Is(err, soaerr.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.VerifyResponse{Error: dto.SignErrorAlreadyUsed})
	}
	h.log.Error("signing endpoint error", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
}
