package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/ledger"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
)

// EvidenceHandler exposes the forensic ledger.
type EvidenceHandler struct {
	ledger *ledger.Ledger
}

func NewEvidenceHandler(l *ledger.Ledger) *EvidenceHandler {
	return &EvidenceHandler{ledger: l}
}

// Append records one evidence entry at the tail of the org's chain.
func (h *EvidenceHandler) Append(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	log := middleware.GetLogger(c)

	body := struct {
		EvidenceType string         `json:"evidence_type"`
		Data         map[string]any `json:"data"`
		IncidentID   string         `json:"incident_id"`
	}{}
	if err := c.BodyParser(&body); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	evidence, err := h.ledger.Append(org, body.EvidenceType, body.Data, body.IncidentID)
	if err != nil {
		if model.IsValidation(err) {
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Failed to append evidence",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to append evidence")
	}

	return c.Status(fiber.StatusCreated).JSON(evidence)
}

// Verify walks the org's full chain and reports integrity diagnostics.
func (h *EvidenceHandler) Verify(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	result, err := h.ledger.VerifyChain(org)
	if err != nil {
		middleware.GetLogger(c).Error("Chain verification failed",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Chain verification failed")
	}
	return c.JSON(result)
}

// Timeline returns an incident's evidence ordered by timestamp.
func (h *EvidenceHandler) Timeline(c *fiber.Ctx) error {
	incidentID := c.Params("incident")

	timeline, err := h.ledger.Timeline(incidentID)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to load timeline",
			logger.String("incident_id", incidentID),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to load timeline")
	}
	return c.JSON(timeline)
}
