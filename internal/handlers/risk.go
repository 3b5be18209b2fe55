package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/anomaly"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/middleware"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/risk"
)

// RiskHandler exposes composite risk assessment for an authentication
// attempt.
type RiskHandler struct {
	scorer     *anomaly.Scorer
	aggregator *risk.Aggregator
}

func NewRiskHandler(scorer *anomaly.Scorer, aggregator *risk.Aggregator) *RiskHandler {
	return &RiskHandler{scorer: scorer, aggregator: aggregator}
}

type riskRequest struct {
	observationRequest
	Device model.DeviceSignal `json:"device"`
}

type riskResponse struct {
	model.RiskAssessment
	Policy  model.Policy        `json:"policy"`
	Anomaly model.AnomalyResult `json:"anomaly"`
}

// Assess scores the observation, folds in threat-intel and device signals,
// and returns the composite assessment with its policy decision.
func (h *RiskHandler) Assess(c *fiber.Ctx) error {
	log := middleware.GetLogger(c)

	var req riskRequest
	if err := c.BodyParser(&req); err != nil {
		return middleware.BadRequest(c, "Invalid JSON body")
	}

	key, err := req.actorKey()
	if err != nil {
		return middleware.BadRequest(c, err.Error())
	}

	anomalyResult, err := h.scorer.Score(key, req.observation())
	if err != nil {
		if model.IsValidation(err) {
			return middleware.BadRequest(c, err.Error())
		}
		log.Error("Anomaly scoring failed during risk assessment",
			logger.String("actor", key.String()),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to assess risk")
	}

	assessment, err := h.aggregator.Calculate(key, req.IP, req.Device, anomalyResult)
	if err != nil {
		log.Error("Risk aggregation failed",
			logger.String("actor", key.String()),
			logger.Error(err))
		return middleware.InternalServerError(c, "Failed to assess risk")
	}

	policy := h.aggregator.DecidePolicy(req.Org, assessment.TotalScore)
	log.Info("Risk assessed",
		logger.String("actor", key.String()),
		logger.Int("total_score", assessment.TotalScore),
		logger.String("policy", string(policy)))

	return c.JSON(riskResponse{
		RiskAssessment: assessment,
		Policy:         policy,
		Anomaly:        anomalyResult,
	})
}
