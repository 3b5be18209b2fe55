package anomaly

import (
	"fmt"
	"time"

	"github.com/praetorlabs/praetor/internal/baseline"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
)

const (
	// Scores on the heuristic (low-baseline) path.
	newIPLowBaselineScore = 60

	// Scores on the model path.
	inlierBaseScore = 10
	newIPBonus      = 30

	// Confidence tiers by history depth.
	lowConfidence  = 0.4
	highConfidence = 0.8
)

// Config tunes the scorer's sample thresholds.
type Config struct {
	MinSamples            int // below this the heuristic path applies
	HighConfidenceSamples int // above this confidence rises to the high tier
}

// Scorer classifies observations against per-actor baselines and persists
// an AnomalyEvent for every anomalous verdict.
type Scorer struct {
	cfg       Config
	baselines *baseline.Store
	events    *EventStore
	detector  Detector
	log       logger.Logger
}

// NewScorer creates an anomaly scorer. The detector is pluggable; pass
// NewZScoreDetector() or NewMADDetector().
func NewScorer(cfg Config, baselines *baseline.Store, events *EventStore, detector Detector, log logger.Logger) *Scorer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.HighConfidenceSamples <= 0 {
		cfg.HighConfidenceSamples = 20
	}
	if detector == nil {
		detector = NewZScoreDetector()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scorer{
		cfg:       cfg,
		baselines: baselines,
		events:    events,
		detector:  detector,
		log:       log,
	}
}

// Score classifies one observation. It reads the baseline but never
// mutates it; ingestion is a separate operation.
func (s *Scorer) Score(key model.ActorKey, obs model.Observation) (model.AnomalyResult, error) {
	if err := obs.Validate(); err != nil {
		return model.AnomalyResult{}, err
	}

	start := time.Now()
	defer func() {
		metrics.AnomalyScoreDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := s.baselines.Snapshot(key)
	if err != nil {
		return model.AnomalyResult{}, err
	}

	var result model.AnomalyResult
	var path string

	if len(snap.Hours) < s.cfg.MinSamples {
		result = s.scoreHeuristic(snap, obs)
		path = "heuristic"
	} else {
		result = s.scoreModel(snap, obs)
		path = "model"
	}

	verdict := "normal"
	if result.IsAnomaly {
		verdict = "anomaly"
		if err := s.recordEvent(key, obs, result); err != nil {
			return model.AnomalyResult{}, err
		}
	}
	metrics.AnomalyScoresTotal.WithLabelValues(verdict, path).Inc()

	return result, nil
}

// scoreHeuristic handles actors with too little history for the model: a
// never-seen source IP is the only signal available.
func (s *Scorer) scoreHeuristic(snap baseline.Snapshot, obs model.Observation) model.AnomalyResult {
	if !snap.SeenIP(obs.IP) {
		return model.AnomalyResult{
			IsAnomaly:  true,
			Score:      newIPLowBaselineScore,
			Confidence: 0.5,
			Reason:     "new IP address (low baseline)",
		}
	}
	return model.AnomalyResult{Reason: "insufficient baseline"}
}

// scoreModel fits the outlier detector on the hour-of-day history and
// layers the unseen-IP signal on top of the time-based verdict.
func (s *Scorer) scoreModel(snap baseline.Snapshot, obs model.Observation) model.AnomalyResult {
	fitted := s.detector.Fit(snap.Hours)
	outlier, margin := fitted.Classify(obs.Hour)

	var score float64
	var reason string
	isAnomaly := false

	if outlier {
		isAnomaly = true
		score = margin*100 + 50
		if score > 100 {
			score = 100
		}
		reason = fmt.Sprintf("unusual activity hour (%02d:00)", int(obs.Hour))
	} else {
		score = inlierBaseScore
	}

	// An unseen IP always forces the anomaly verdict, whatever the
	// time-based model said.
	if !snap.SeenIP(obs.IP) {
		score += newIPBonus
		isAnomaly = true
		if reason != "" {
			reason += " & new IP"
		} else {
			reason = "new IP address"
		}
	}

	if score > 100 {
		score = 100
	}

	confidence := lowConfidence
	if len(snap.Hours) > s.cfg.HighConfidenceSamples {
		confidence = highConfidence
	}

	return model.AnomalyResult{
		IsAnomaly:  isAnomaly,
		Score:      score,
		Confidence: confidence,
		Reason:     reason,
	}
}

func (s *Scorer) recordEvent(key model.ActorKey, obs model.Observation, result model.AnomalyResult) error {
	event, err := s.events.Append(model.AnomalyEvent{
		Org:           key.Org,
		EventType:     "login_anomaly",
		SeverityScore: result.Score,
		Confidence:    result.Confidence,
		Details: model.AnomalyDetails{
			EntityType: key.EntityType,
			EntityID:   key.EntityID,
			IP:         obs.IP,
			Reason:     result.Reason,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to record anomaly event: %w", err)
	}

	s.log.Info("Anomaly detected",
		logger.String("actor", key.String()),
		logger.Uint64("event_id", event.ID),
		logger.Float64("score", result.Score),
		logger.String("reason", result.Reason))
	return nil
}
