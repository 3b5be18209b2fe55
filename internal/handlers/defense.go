package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/deception"
	"github.com/praetorlabs/praetor/internal/defense"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/threatintel"
)

// DefenseHandler exposes blocked actors, threat-intel ingestion, and
// deception traps.
type DefenseHandler struct {
	defenses *defense.Store
	intel    *threatintel.Store
	traps    *deception.Service
}

func NewDefenseHandler(defenses *defense.Store, intel *threatintel.Store, traps *deception.Service) *DefenseHandler {
	return &DefenseHandler{defenses: defenses, intel: intel, traps: traps}
}

// ListBlocked returns the org's currently blocked actors.
func (h *DefenseHandler) ListBlocked(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	blocked, err := h.defenses.List(org)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list blocked actors",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to list blocked actors")
	}
	return c.JSON(blocked)
}

// IngestIndicators upserts a batch of threat indicators from one feed.
func (h *DefenseHandler) IngestIndicators(c *fiber.Ctx) error {
	log := middleware.GetLogger(c)

	body := struct {
		Source     string                  `json:"source"`
		Indicators []model.ThreatIndicator `json:"indicators"`
	}{}
	if err := c.BodyParser(&body); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}
	if body.Source == "" {
		return middleware.BadRequest(c, "source is required")
	}

	if err := h.intel.Ingest(body.Source, body.Indicators); err != nil {
		if model.IsValidation(err) {
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Failed to ingest indicators",
			logger.String("source", body.Source),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to ingest indicators")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "indicators ingested",
		"count":   len(body.Indicators),
	})
}

// CreateTrap plants a deception trap for the org.
func (h *DefenseHandler) CreateTrap(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	log := middleware.GetLogger(c)

	body := struct {
		AssetType string            `json:"asset_type"`
		Label     string            `json:"label"`
		Config    map[string]string `json:"config"`
	}{}
	if err := c.BodyParser(&body); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	trap, err := h.traps.Create(org, body.AssetType, body.Label, body.Config)
	if err != nil {
		if model.IsValidation(err) {
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Failed to create trap",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to create trap")
	}
	return c.Status(fiber.StatusCreated).JSON(trap)
}

// ListTraps returns the org's traps.
func (h *DefenseHandler) ListTraps(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	traps, err := h.traps.List(org)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list traps",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to list traps")
	}
	return c.JSON(traps)
}

// TriggerTrap fires the trap identified by its token. The response is
// deliberately bland; the caller is the attacker.
func (h *DefenseHandler) TriggerTrap(c *fiber.Ctx) error {
	token := c.Params("token")
	log := middleware.GetLogger(c)

	incident, err := h.traps.Trigger(token, c.IP())
	if err != nil {
		if model.IsNotFound(err) {
			return middleware.NotFound(c, "Not found")
		}
		log.Error("Trap trigger failed",
			logger.String("token", token),
			logger.Error(err))
		return middleware.InternalServerError(c, "Internal error")
	}

	// Do not leak the incident to the caller.
	log.Warn("Trap trigger handled", logger.String("incident_id", incident.ID))
	return c.SendStatus(fiber.StatusNotFound)
}
