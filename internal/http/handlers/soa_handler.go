package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/http/dto"
	"github.com/soasign/backend/internal/middleware"
	"github.com/soasign/backend/internal/services"
	"github.com/soasign/backend/internal/soaerr"
)

type SOAHandler struct {
	soaService    *services.SOAService
	renderService *services.RenderService
	log           *zap.Logger
}

func NewSOAHandler(soaService *services.SOAService, renderService *services.RenderService, log *zap.Logger) *SOAHandler {
	return &SOAHandler{soaService: soaService, renderService: renderService, log: log}
}

func (h *SOAHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateSOARequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid client_id"})
	}

	input := services.CreateSOAInput{
		ClientID:             clientID,
		BeneficiaryName:      req.BeneficiaryName,
		BeneficiaryPhone:     req.BeneficiaryPhone,
		BeneficiaryAddress:   req.BeneficiaryAddress,
		AgentName:            req.AgentName,
		AgentPhone:           req.AgentPhone,
		AgentNPN:             req.AgentNPN,
		Language:             req.Language,
		ProductsPreselected:  req.ProductsPreselected,
		InitialContactMethod: req.InitialContactMethod,
		DeliveryMethod:       req.DeliveryMethod,
		DeliveryAddress:      req.DeliveryAddress,
	}
	if req.AppointmentDate != nil && *req.AppointmentDate != "" {
		d, err := time.Parse("2006-01-02", *req.AppointmentDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{"appointment_date": "must be YYYY-MM-DD"},
			})
		}
		input.AppointmentDate = &d
	}

	agentID := middleware.GetAgentID(c)
	rec, err := h.soaService.Create(c.Context(), agentID, input)
	if err != nil {
		// A delivery failure still created the record; hand it back as a
		// draft so the agent can resend.
		if de, ok := soaerr.AsDelivery(err); ok && rec != nil {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
				Error: deliveryMessage(de),
				Data:  rec,
			})
		}
		return writeError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: rec})
}

func (h *SOAHandler) List(c *fiber.Ctx) error {
	agentID := middleware.GetAgentID(c)

	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}

	records, err := h.soaService.ListForAgent(c.Context(), agentID, status, limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: records})
}

func (h *SOAHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	rec, err := h.soaService.GetForAgent(c.Context(), middleware.GetAgentID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: rec})
}

func (h *SOAHandler) AuditTrail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	limit, offset := 100, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	entries, err := h.soaService.AuditTrail(c.Context(), middleware.GetAgentID(c), id, limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *SOAHandler) Resend(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	if err := h.soaService.Resend(c.Context(), middleware.GetAgentID(c), id); err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *SOAHandler) Void(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	var req dto.VoidSOARequest
	_ = c.BodyParser(&req)

	if err := h.soaService.Void(c.Context(), middleware.GetAgentID(c), id, req.Reason); err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *SOAHandler) Countersign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	var req dto.CountersignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	agentID := middleware.GetAgentID(c)
	rec, err := h.soaService.Countersign(c.Context(), agentID, id, req.TypedSignature)
	if err != nil {
		return writeError(c, h.log, err)
	}

	resp := dto.CountersignResponse{OK: true, Data: rec}
	if path, renderErr := h.renderService.Render(c.Context(), agentID, id); renderErr != nil {
		h.log.Error("render after countersign failed",
			zap.String("soa_id", id.String()),
			zap.Error(renderErr),
		)
		resp.RenderError = "document rendering failed, re-render to retry"
	} else {
		rec.SignedArtifactPath = &path
	}

	return c.JSON(resp)
}

func (h *SOAHandler) Render(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	path, err := h.renderService.Render(c.Context(), middleware.GetAgentID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"signed_artifact_path": path}})
}

func (h *SOAHandler) DocumentURL(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid soa id"})
	}

	url, err := h.renderService.DocumentURL(c.Context(), middleware.GetAgentID(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.DocumentURLResponse{URL: url})
}
