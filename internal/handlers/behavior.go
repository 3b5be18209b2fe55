package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/anomaly"
	"github.com/praetorlabs/praetor/internal/baseline"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
)

// observationRequest is the shared body for ingestion and scoring.
type observationRequest struct {
	Org        string  `json:"org"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Hour       float64 `json:"hour"`
	IP         string  `json:"ip"`
}

func (r observationRequest) actorKey() (model.ActorKey, error) {
	if err := model.ValidateOrg(r.Org); err != nil {
		return model.ActorKey{}, err
	}
	entityType := model.EntityType(r.EntityType)
	if !entityType.Valid() {
		return model.ActorKey{}, &model.ValidationError{Field: "entity_type", Reason: "must be user or ip"}
	}
	if r.EntityID == "" {
		return model.ActorKey{}, &model.ValidationError{Field: "entity_id", Reason: "missing"}
	}
	return model.ActorKey{Org: r.Org, EntityType: entityType, EntityID: r.EntityID}, nil
}

func (r observationRequest) observation() model.Observation {
	return model.Observation{Hour: r.Hour, IP: r.IP}
}

// BehaviorHandler exposes baseline ingestion and anomaly scoring.
type BehaviorHandler struct {
	baselines *baseline.Store
	scorer    *anomaly.Scorer
}

func NewBehaviorHandler(baselines *baseline.Store, scorer *anomaly.Scorer) *BehaviorHandler {
	return &BehaviorHandler{baselines: baselines, scorer: scorer}
}

// Ingest folds one observation into the actor's baseline.
func (h *BehaviorHandler) Ingest(c *fiber.Ctx) error {
	log := middleware.GetLogger(c)

	var req observationRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	key, err := req.actorKey()
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	if err := h.baselines.Update(key, req.observation()); err != nil {
		if model.IsValidation(err) {
			metrics.ObservationsIngestedTotal.WithLabelValues(req.EntityType, "invalid").Inc()
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Failed to ingest observation",
			logger.String("actor", key.String()),
			logger.Error(err))
		metrics.ObservationsIngestedTotal.WithLabelValues(req.EntityType, "error").Inc()
		return middleware.InternalServerError(c, "Failed to ingest observation")
	}

	metrics.ObservationsIngestedTotal.WithLabelValues(req.EntityType, "success").Inc()
	log.Debug("Observation ingested", logger.String("actor", key.String()))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "observation ingested"})
}

// Score classifies one observation against the actor's baseline without
// mutating it.
func (h *BehaviorHandler) Score(c *fiber.Ctx) error {
	log := middleware.GetLogger(c)

	var req observationRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	key, err := req.actorKey()
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	result, err := h.scorer.Score(key, req.observation())
	if err != nil {
		var validation *model.ValidationError
		if errors.As(err, &validation) {
			return middleware.BadRequest(c, validation.Error())
		}
		log.Error("Failed to score observation",
			logger.String("actor", key.String()),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to score observation")
	}

	return c.JSON(result)
}
