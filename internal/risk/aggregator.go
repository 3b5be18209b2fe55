package risk

import (
	"fmt"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/threatintel"
)

const (
	threatMatchScore = 50
	anomalyWeight    = 0.8
)

// Config holds the static policy thresholds. They are deliberately plain
// defaults: per-org policy overrides are an external concern.
type Config struct {
	MFAThreshold   int
	BlockThreshold int
}

// Aggregator combines anomaly, device, and threat-intel signals into one
// bounded composite score.
type Aggregator struct {
	cfg     Config
	threats threatintel.Checker
	log     logger.Logger
}

// NewAggregator creates a risk aggregator.
func NewAggregator(cfg Config, threats threatintel.Checker, log logger.Logger) *Aggregator {
	if cfg.MFAThreshold <= 0 {
		cfg.MFAThreshold = 30
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 80
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Aggregator{cfg: cfg, threats: threats, log: log}
}

// Calculate computes the composite risk score for one authentication
// attempt. The result is ephemeral; callers decide what to do with it.
func (a *Aggregator) Calculate(key model.ActorKey, ip string, device model.DeviceSignal, anomaly model.AnomalyResult) (model.RiskAssessment, error) {
	var score float64
	factors := []string{}

	match, err := a.threats.CheckIP(ip)
	if err != nil {
		return model.RiskAssessment{}, fmt.Errorf("threat intel lookup failed: %w", err)
	}
	if match.IsMalicious {
		score += threatMatchScore
		factors = append(factors, fmt.Sprintf("threat intelligence match (%d pts): %s", threatMatchScore, match.Description))
	}

	if anomaly.Score > 0 {
		weighted := anomaly.Score * anomalyWeight
		score += weighted
		if anomaly.IsAnomaly {
			factors = append(factors, fmt.Sprintf("behavioral anomaly (%d pts): %s", int(weighted), anomaly.Reason))
		}
	}

	if device.RiskScore > 0 {
		score += device.RiskScore
		factors = append(factors, fmt.Sprintf("device risk (%d pts)", int(device.RiskScore)))
	}

	if score > 100 {
		score = 100
	}

	assessment := model.RiskAssessment{
		TotalScore: int(score),
		Factors:    factors,
	}

	a.log.Debug("Risk assessment computed",
		logger.String("actor", key.String()),
		logger.Int("total_score", assessment.TotalScore),
		logger.Int("factors", len(factors)))
	return assessment, nil
}

// DecidePolicy maps a risk score to the authentication gate decision.
func (a *Aggregator) DecidePolicy(org string, score int) model.Policy {
	var policy model.Policy
	switch {
	case score >= a.cfg.BlockThreshold:
		policy = model.PolicyBlock
	case score >= a.cfg.MFAThreshold:
		policy = model.PolicyMFA
	default:
		policy = model.PolicyAllow
	}

	metrics.RiskDecisionsTotal.WithLabelValues(string(policy)).Inc()
	return policy
}
