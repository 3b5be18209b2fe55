package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/playbook"
)

// PlaybookHandler exposes playbook administration and execution history.
type PlaybookHandler struct {
	store *playbook.Store
}

func NewPlaybookHandler(store *playbook.Store) *PlaybookHandler {
	return &PlaybookHandler{store: store}
}

// Create registers a new playbook for the org.
func (h *PlaybookHandler) Create(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	log := middleware.GetLogger(c)

	var pb model.Playbook
	if err := c.BodyParser(&pb); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body: "+err.Error())
	}
	pb.Org = org

	created, err := h.store.Create(pb)
	if err != nil {
		if model.IsValidation(err) {
			return middleware.UnprocessableEntity(c, err.Error())
		}
		log.Error("Failed to create playbook",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to create playbook")
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// List returns the org's playbooks; ?active=true filters to active ones.
func (h *PlaybookHandler) List(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	activeOnly := c.Query("active", "false") == "true"

	playbooks, err := h.store.List(org, activeOnly)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list playbooks",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to list playbooks")
	}
	return c.JSON(playbooks)
}

// SetActive flips a playbook's active flag.
func (h *PlaybookHandler) SetActive(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	id := c.Params("id")

	body := struct {
		IsActive bool `json:"is_active"`
	}{}
	if err := c.BodyParser(&body); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	updated, err := h.store.SetActive(org, id, body.IsActive)
	if err != nil {
		if model.IsNotFound(err) {
			return middleware.NotFound(c, "Playbook not found")
		}
		middleware.GetLogger(c).Error("Failed to update playbook",
			logger.String("playbook_id", id),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to update playbook")
	}
	return c.JSON(updated)
}

// Executions returns execution history; ?incident= filters by incident.
func (h *PlaybookHandler) Executions(c *fiber.Ctx) error {
	org, err := orgParam(c)
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	incidentID := c.Query("incident")

	executions, err := h.store.Executions(org, incidentID)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to list executions",
			logger.String("org", org),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to list executions")
	}
	return c.JSON(executions)
}
