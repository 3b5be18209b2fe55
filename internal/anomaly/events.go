package anomaly

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const eventKeyPrefix = "ae:"

// EventStore is the append-only AnomalyEvent log. Ids increase
// monotonically per org, so key order equals insertion order.
type EventStore struct {
	engine persistence.Engine
	log    logger.Logger
}

// NewEventStore creates an anomaly event store.
func NewEventStore(engine persistence.Engine, log logger.Logger) *EventStore {
	if log == nil {
		log = logger.GetDefault()
	}
	return &EventStore{engine: engine, log: log}
}

// Append persists a detection record and assigns its id.
func (s *EventStore) Append(event model.AnomalyEvent) (model.AnomalyEvent, error) {
	id, err := s.engine.NextSequence("anomaly_events:" + event.Org)
	if err != nil {
		return model.AnomalyEvent{}, err
	}
	event.ID = id
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return model.AnomalyEvent{}, err
	}
	if err := s.engine.Set(eventKey(event.Org, id), raw); err != nil {
		return model.AnomalyEvent{}, err
	}
	return event, nil
}

// Recent returns the org's events created at or after the cutoff with a
// severity score above the floor, in id order.
func (s *EventStore) Recent(org string, cutoff time.Time, minSeverity float64) ([]model.AnomalyEvent, error) {
	entries, err := s.engine.Scan(eventKeyPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	var events []model.AnomalyEvent
	for _, entry := range entries {
		var event model.AnomalyEvent
		if err := json.Unmarshal(entry.Value, &event); err != nil {
			s.log.Warn("Skipping corrupt anomaly event",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		if event.CreatedAt.Before(cutoff) {
			continue
		}
		if event.SeverityScore <= minSeverity {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func eventKey(org string, id uint64) string {
	return fmt.Sprintf("%s%s:%016x", eventKeyPrefix, org, id)
}
