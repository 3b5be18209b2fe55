package correlation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const incidentPrefix = "inc:"

// IncidentStore persists correlation incidents.
type IncidentStore struct {
	engine persistence.Engine
	log    logger.Logger
}

// NewIncidentStore creates an incident store.
func NewIncidentStore(engine persistence.Engine, log logger.Logger) *IncidentStore {
	if log == nil {
		log = logger.GetDefault()
	}
	return &IncidentStore{engine: engine, log: log}
}

// Create assigns an id and timestamps and persists the incident.
func (s *IncidentStore) Create(incident model.Incident) (model.Incident, error) {
	if incident.Org == "" {
		return model.Incident{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}
	incident.ID = uuid.New().String()
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	if incident.Status == "" {
		incident.Status = model.StatusOpen
	}
	if incident.LinkedEventIDs == nil {
		incident.LinkedEventIDs = []uint64{}
	}

	if err := s.put(incident); err != nil {
		return model.Incident{}, err
	}
	return incident, nil
}

// Update persists a modified incident and bumps its updated_at.
func (s *IncidentStore) Update(incident model.Incident) (model.Incident, error) {
	if incident.ID == "" {
		return model.Incident{}, &model.ValidationError{Field: "id", Reason: "missing"}
	}
	incident.UpdatedAt = time.Now().UTC()
	if err := s.put(incident); err != nil {
		return model.Incident{}, err
	}
	return incident, nil
}

// Get returns one incident by id.
func (s *IncidentStore) Get(org, id string) (model.Incident, error) {
	raw, err := s.engine.Get(incidentKey(org, id))
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return model.Incident{}, &model.NotFoundError{Type: "incident", ID: id}
	}
	if err != nil {
		return model.Incident{}, err
	}

	var incident model.Incident
	if err := json.Unmarshal(raw, &incident); err != nil {
		return model.Incident{}, err
	}
	return incident, nil
}

// List returns the org's incidents, optionally filtered by status.
func (s *IncidentStore) List(org string, status model.IncidentStatus) ([]model.Incident, error) {
	entries, err := s.engine.Scan(incidentPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	incidents := make([]model.Incident, 0, len(entries))
	for _, entry := range entries {
		var incident model.Incident
		if err := json.Unmarshal(entry.Value, &incident); err != nil {
			s.log.Warn("Skipping corrupt incident record",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		if status != "" && incident.Status != status {
			continue
		}
		incidents = append(incidents, incident)
	}
	return incidents, nil
}

// OpenByActor returns the org's OPEN incident for the given actor, or a
// NotFoundError when none exists.
func (s *IncidentStore) OpenByActor(org string, actor model.ActorKey) (model.Incident, error) {
	open, err := s.List(org, model.StatusOpen)
	if err != nil {
		return model.Incident{}, err
	}
	for _, incident := range open {
		if incident.ActorKey() == actor {
			return incident, nil
		}
	}
	return model.Incident{}, &model.NotFoundError{Type: "incident", ID: actor.String()}
}

// Transition moves an incident to a new lifecycle state. RESOLVED is
// terminal: there is no path back to OPEN or INVESTIGATING.
func (s *IncidentStore) Transition(org, id string, status model.IncidentStatus) (model.Incident, error) {
	if !status.Valid() {
		return model.Incident{}, &model.ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}

	incident, err := s.Get(org, id)
	if err != nil {
		return model.Incident{}, err
	}
	if incident.Status == model.StatusResolved && status != model.StatusResolved {
		return model.Incident{}, &model.ValidationError{Field: "status", Reason: "incident is resolved"}
	}

	incident.Status = status
	return s.Update(incident)
}

func (s *IncidentStore) put(incident model.Incident) error {
	raw, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	return s.engine.Set(incidentKey(incident.Org, incident.ID), raw)
}

func incidentKey(org, id string) string {
	return incidentPrefix + org + ":" + id
}
