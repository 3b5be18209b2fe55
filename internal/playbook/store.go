package playbook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const (
	playbookPrefix  = "pb:"
	executionPrefix = "px:"
)

// Store persists playbooks and their execution records.
type Store struct {
	engine persistence.Engine
	log    logger.Logger
}

// NewStore creates a playbook store.
func NewStore(engine persistence.Engine, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Store{engine: engine, log: log}
}

// Create validates and persists a new playbook.
func (s *Store) Create(playbook model.Playbook) (model.Playbook, error) {
	if playbook.Org == "" {
		return model.Playbook{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}
	if err := playbook.Validate(); err != nil {
		return model.Playbook{}, err
	}

	playbook.ID = uuid.New().String()
	now := time.Now().UTC()
	playbook.CreatedAt = now
	playbook.UpdatedAt = now

	if err := s.put(playbook); err != nil {
		return model.Playbook{}, err
	}
	s.log.Info("Playbook created",
		logger.String("playbook_id", playbook.ID),
		logger.String("org", playbook.Org),
		logger.String("name", playbook.Name))
	return playbook, nil
}

// Get returns one playbook by id.
func (s *Store) Get(org, id string) (model.Playbook, error) {
	raw, err := s.engine.Get(playbookKey(org, id))
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return model.Playbook{}, &model.NotFoundError{Type: "playbook", ID: id}
	}
	if err != nil {
		return model.Playbook{}, err
	}

	var playbook model.Playbook
	if err := json.Unmarshal(raw, &playbook); err != nil {
		return model.Playbook{}, err
	}
	return playbook, nil
}

// List returns the org's playbooks. With activeOnly set, inactive ones are
// filtered out.
func (s *Store) List(org string, activeOnly bool) ([]model.Playbook, error) {
	entries, err := s.engine.Scan(playbookPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	playbooks := make([]model.Playbook, 0, len(entries))
	for _, entry := range entries {
		var playbook model.Playbook
		if err := json.Unmarshal(entry.Value, &playbook); err != nil {
			s.log.Warn("Skipping corrupt playbook record",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		if activeOnly && !playbook.IsActive {
			continue
		}
		playbooks = append(playbooks, playbook)
	}
	return playbooks, nil
}

// SetActive flips a playbook's active flag.
func (s *Store) SetActive(org, id string, active bool) (model.Playbook, error) {
	playbook, err := s.Get(org, id)
	if err != nil {
		return model.Playbook{}, err
	}
	playbook.IsActive = active
	playbook.UpdatedAt = time.Now().UTC()
	if err := s.put(playbook); err != nil {
		return model.Playbook{}, err
	}
	return playbook, nil
}

// RecordExecution persists one immutable execution record.
func (s *Store) RecordExecution(execution model.PlaybookExecution) (model.PlaybookExecution, error) {
	execution.ID = uuid.New().String()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(execution)
	if err != nil {
		return model.PlaybookExecution{}, err
	}
	if err := s.engine.Set(executionKey(execution.Org, execution.ID), raw); err != nil {
		return model.PlaybookExecution{}, err
	}
	return execution, nil
}

// Executions returns the org's execution history, optionally filtered by
// incident.
func (s *Store) Executions(org, incidentID string) ([]model.PlaybookExecution, error) {
	entries, err := s.engine.Scan(executionPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	executions := make([]model.PlaybookExecution, 0, len(entries))
	for _, entry := range entries {
		var execution model.PlaybookExecution
		if err := json.Unmarshal(entry.Value, &execution); err != nil {
			s.log.Warn("Skipping corrupt execution record",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		if incidentID != "" && execution.IncidentID != incidentID {
			continue
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

func (s *Store) put(playbook model.Playbook) error {
	raw, err := json.Marshal(playbook)
	if err != nil {
		return err
	}
	return s.engine.Set(playbookKey(playbook.Org, playbook.ID), raw)
}

func playbookKey(org, id string) string {
	return playbookPrefix + org + ":" + id
}

func executionKey(org, id string) string {
	return executionPrefix + org + ":" + id
}
