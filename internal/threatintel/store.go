package threatintel

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const indicatorPrefix = "ti:"

// defaultConfidence is assigned to freshly ingested indicators that carry
// no confidence of their own.
const defaultConfidence = 80

// Checker is the lookup interface the risk aggregator depends on. The
// feed sources themselves live outside this core; the store below is the
// in-process representation of their output.
type Checker interface {
	CheckIP(ip string) (model.ThreatMatch, error)
}

// Store holds ingested threat indicators keyed by value.
type Store struct {
	engine persistence.Engine
	log    logger.Logger
}

// NewStore creates a threat indicator store.
func NewStore(engine persistence.Engine, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Store{engine: engine, log: log}
}

// Ingest upserts a batch of indicators from one feed source.
func (s *Store) Ingest(source string, indicators []model.ThreatIndicator) error {
	now := time.Now().UTC()
	for _, indicator := range indicators {
		if indicator.Value == "" {
			return &model.ValidationError{Field: "value", Reason: "missing"}
		}
		indicator.Source = source
		indicator.LastUpdated = now
		if indicator.Type == "" {
			indicator.Type = "IP"
		}
		if indicator.Confidence == 0 {
			indicator.Confidence = defaultConfidence
		}

		raw, err := json.Marshal(indicator)
		if err != nil {
			return err
		}
		if err := s.engine.Set(indicatorPrefix+indicator.Value, raw); err != nil {
			return err
		}
	}

	s.log.Info("Threat indicators ingested",
		logger.String("source", source),
		logger.Int("count", len(indicators)))
	return nil
}

// CheckIP looks up an IP against the indicator set.
func (s *Store) CheckIP(ip string) (model.ThreatMatch, error) {
	raw, err := s.engine.Get(indicatorPrefix + ip)
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return model.ThreatMatch{}, nil
	}
	if err != nil {
		return model.ThreatMatch{}, err
	}

	var indicator model.ThreatIndicator
	if err := json.Unmarshal(raw, &indicator); err != nil {
		return model.ThreatMatch{}, err
	}
	return model.ThreatMatch{
		IsMalicious: true,
		Confidence:  indicator.Confidence,
		Source:      indicator.Source,
		Description: indicator.Description,
	}, nil
}
