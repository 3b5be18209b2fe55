package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/correlation"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
)

// IncidentHandler exposes correlation passes and incident management.
type IncidentHandler struct {
	engine    *correlation.Engine
	incidents *correlation.IncidentStore
}

func NewIncidentHandler(engine *correlation.Engine, incidents *correlation.IncidentStore) *IncidentHandler {
	return &IncidentHandler{engine: engine, incidents: incidents}
}

// Correlate runs one manual correlation pass for the org.
func (h *IncidentHandler) Correlate(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	log := middleware.GetLogger(c)

	result, err := h.engine.Run(org, correlation.TriggerManual)
	if err != nil {
		if model.IsValidation(err) {
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Correlation pass failed",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Correlation pass failed")
	}

	return c.JSON(result)
}

// List returns the org's incidents, optionally filtered with ?status=OPEN.
func (h *IncidentHandler) List(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	status := model.IncidentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return middleware.BadRequest(c, "unknown status filter")
	}

	incidents, err := h.incidents.List(org, status)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list incidents",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to list incidents")
	}
	return c.JSON(incidents)
}

// Get returns one incident.
func (h *IncidentHandler) Get(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	id := c.Params("id")

	incident, err := h.incidents.Get(org, id)
	if err != nil {
		if model.IsNotFound(err) {
			return middleware.NotFound(c, "Incident not found")
		}
		middleware.GetLogger(c).Error("Failed to load incident",
			logger.String("incident_id", id),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to load incident")
	}
	return c.JSON(incident)
}

// Transition applies a manual lifecycle change to an incident.
func (h *IncidentHandler) Transition(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	id := c.Params("id")
	log := middleware.GetLogger(c)

	body := struct {
		Status model.IncidentStatus `json:"status"`
	}{}
	if err := c.BodyParser(&body); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}
	if !body.Status.Valid() {
		return middleware.BadRequest(c, "unknown status "+string(body.Status))
	}

	incident, err := h.incidents.Transition(org, id, body.Status)
	if err != nil {
		if model.IsNotFound(err) {
			return middleware.NotFound(c, "Incident not found")
		}
		// Past the enum check above, a validation error means an illegal
		// lifecycle transition.
		if model.IsValidation(err) {
			return middleware.Conflict(c, err.Error())
		}
		log.Error("Failed to transition incident",
			logger.String("incident_id", id),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to transition incident")
	}

	log.Info("Incident transitioned",
		logger.String("incident_id", id),
		logger.String("status", string(incident.Status)))
	return c.JSON(incident)
}
