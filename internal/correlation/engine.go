package correlation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/praetorlabs/praetor/internal/anomaly"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
)

// Pass trigger labels for metrics.
const (
	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

const highSeverityScore = 80

// Responder is invoked for every incident the engine creates or updates.
// The playbook engine implements it; a nil responder disables automated
// response.
type Responder interface {
	Evaluate(incident model.Incident) error
}

// Config tunes a correlation pass.
type Config struct {
	Window      time.Duration // lookback for recent events
	MinSeverity float64       // events at or below this score are ignored
}

// Engine groups recent high-severity anomaly events into incidents by
// actor. Passes for the same org are serialized; different orgs proceed
// independently.
type Engine struct {
	cfg       Config
	events    *anomaly.EventStore
	incidents *IncidentStore
	responder Responder
	log       logger.Logger

	mu   sync.Mutex
	orgs map[string]*sync.Mutex
}

// NewEngine creates a correlation engine.
func NewEngine(cfg Config, events *anomaly.EventStore, incidents *IncidentStore, responder Responder, log logger.Logger) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MinSeverity <= 0 {
		cfg.MinSeverity = 50
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{
		cfg:       cfg,
		events:    events,
		incidents: incidents,
		responder: responder,
		log:       log,
		orgs:      make(map[string]*sync.Mutex),
	}
}

// PassResult summarizes one correlation pass.
type PassResult struct {
	EventsExamined   int      `json:"events_examined"`
	IncidentsCreated int      `json:"incidents_created"`
	IncidentsUpdated int      `json:"incidents_updated"`
	IncidentIDs      []string `json:"incident_ids"`
}

// Run executes one correlation pass over the org's recent events. A
// failure on one event's incident does not block the rest of the pass;
// the first error is reported after all events are attempted.
func (e *Engine) Run(org, trigger string) (PassResult, error) {
	if org == "" {
		return PassResult{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}

	lock := e.orgLock(org)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		metrics.CorrelationPassDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-e.cfg.Window)
	events, err := e.events.Recent(org, cutoff, e.cfg.MinSeverity)
	if err != nil {
		metrics.CorrelationPassesTotal.WithLabelValues(trigger, "error").Inc()
		return PassResult{}, err
	}

	result := PassResult{EventsExamined: len(events), IncidentIDs: []string{}}
	var firstErr error
	seen := make(map[string]bool)

	for _, event := range events {
		incident, created, err := e.correlate(org, event)
		if err != nil {
			e.log.Error("Failed to correlate event",
				logger.String("org", org),
				logger.Uint64("event_id", event.ID),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if incident.ID == "" {
			continue // already linked, nothing changed
		}

		if created {
			result.IncidentsCreated++
		} else {
			result.IncidentsUpdated++
		}
		if !seen[incident.ID] {
			seen[incident.ID] = true
			result.IncidentIDs = append(result.IncidentIDs, incident.ID)
		}

		if e.responder != nil {
			if err := e.responder.Evaluate(incident); err != nil {
				e.log.Error("Playbook evaluation failed",
					logger.String("incident_id", incident.ID),
					logger.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	status := "success"
	if firstErr != nil {
		status = "error"
	}
	metrics.CorrelationPassesTotal.WithLabelValues(trigger, status).Inc()

	e.log.Info("Correlation pass finished",
		logger.String("org", org),
		logger.String("trigger", trigger),
		logger.Int("events", result.EventsExamined),
		logger.Int("created", result.IncidentsCreated),
		logger.Int("updated", result.IncidentsUpdated))
	return result, firstErr
}

// correlate links one event to its actor's OPEN incident, creating one if
// none exists. A zero-id incident return means the event was already
// linked and nothing changed.
func (e *Engine) correlate(org string, event model.AnomalyEvent) (model.Incident, bool, error) {
	actor := eventActor(org, event)

	incident, err := e.incidents.OpenByActor(org, actor)
	if err != nil {
		var notFound *model.NotFoundError
		if !errors.As(err, &notFound) {
			return model.Incident{}, false, err
		}
		created, err := e.createIncident(org, event)
		return created, true, err
	}

	if incident.HasLinkedEvent(event.ID) {
		return model.Incident{}, false, nil
	}

	incident.LinkedEventIDs = append(incident.LinkedEventIDs, event.ID)
	if event.SeverityScore > highSeverityScore && severityRank(incident.Severity) < severityRank(model.SeverityHigh) {
		incident.Severity = model.SeverityHigh
	}

	updated, err := e.incidents.Update(incident)
	if err != nil {
		return model.Incident{}, false, err
	}

	metrics.IncidentsUpdatedTotal.Inc()
	e.log.Info("Event linked to incident",
		logger.String("incident_id", updated.ID),
		logger.Uint64("event_id", event.ID),
		logger.String("severity", string(updated.Severity)))
	return updated, false, nil
}

func (e *Engine) createIncident(org string, event model.AnomalyEvent) (model.Incident, error) {
	severity := model.SeverityMedium
	if event.SeverityScore > highSeverityScore {
		severity = model.SeverityHigh
	}
	stage := model.StageRecon
	if strings.Contains(event.EventType, "login") {
		stage = model.StageExploitation
	}

	incident := model.Incident{
		Org:            org,
		Status:         model.StatusOpen,
		Severity:       severity,
		KillChainStage: stage,
		Summary:        fmt.Sprintf("Anomaly detected: %s (score %.0f)", event.EventType, event.SeverityScore),
		Description:    event.Details.Reason,
		ActorIP:        event.Details.IP,
		LinkedEventIDs: []uint64{event.ID},
	}
	if event.Details.EntityType == model.EntityUser {
		incident.ActorUserID = event.Details.EntityID
	} else if incident.ActorIP == "" {
		incident.ActorIP = event.Details.EntityID
	}

	created, err := e.incidents.Create(incident)
	if err != nil {
		return model.Incident{}, err
	}

	metrics.IncidentsCreatedTotal.WithLabelValues(string(created.Severity), string(created.KillChainStage)).Inc()
	e.log.Info("Incident created",
		logger.String("incident_id", created.ID),
		logger.String("org", org),
		logger.String("severity", string(created.Severity)),
		logger.String("stage", string(created.KillChainStage)))
	return created, nil
}

func (e *Engine) orgLock(org string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.orgs[org]
	if !ok {
		lock = &sync.Mutex{}
		e.orgs[org] = lock
	}
	return lock
}

// eventActor resolves the actor an event belongs to, preferring the user
// identity over the source IP.
func eventActor(org string, event model.AnomalyEvent) model.ActorKey {
	if event.Details.EntityType == model.EntityUser && event.Details.EntityID != "" {
		return model.ActorKey{Org: org, EntityType: model.EntityUser, EntityID: event.Details.EntityID}
	}
	ip := event.Details.IP
	if ip == "" {
		ip = event.Details.EntityID
	}
	return model.ActorKey{Org: org, EntityType: model.EntityIP, EntityID: ip}
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityLow:
		return 0
	case model.SeverityMedium:
		return 1
	case model.SeverityHigh:
		return 2
	case model.SeverityCritical:
		return 3
	}
	return -1
}
