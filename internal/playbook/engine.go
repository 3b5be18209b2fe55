package playbook

import (
	"fmt"
	"time"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
)

// Blocker applies the BLOCK_IP action. The defense store implements it.
type Blocker interface {
	Block(org, ip, reason string, expiresAt *time.Time) (model.BlockedActor, error)
}

// Engine matches incidents against active playbooks and executes their
// actions. Actions run in declared order and the run aborts on the first
// failure; every matched playbook yields exactly one execution record
// either way.
type Engine struct {
	store   *Store
	blocker Blocker
	log     logger.Logger
}

// NewEngine creates a playbook engine.
func NewEngine(store *Store, blocker Blocker, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{store: store, blocker: blocker, log: log}
}

// Evaluate runs every active playbook whose trigger matches the incident.
// Action failures are captured in execution records; the returned error
// covers infrastructure failures only.
func (e *Engine) Evaluate(incident model.Incident) error {
	playbooks, err := e.store.List(incident.Org, true)
	if err != nil {
		return fmt.Errorf("failed to list playbooks: %w", err)
	}

	for _, playbook := range playbooks {
		if !playbook.Trigger.Matches(&incident) {
			continue
		}
		if _, err := e.Execute(playbook, incident); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one playbook against an incident and records the outcome.
func (e *Engine) Execute(playbook model.Playbook, incident model.Incident) (model.PlaybookExecution, error) {
	logs := []string{fmt.Sprintf("playbook %q matched incident %s", playbook.Name, incident.ID)}
	status := model.ExecutionSuccess

	for _, action := range playbook.Actions {
		line, err := e.runAction(action, incident)
		if err != nil {
			metrics.PlaybookActionsTotal.WithLabelValues(string(action), "failed").Inc()
			logs = append(logs, fmt.Sprintf("action %s failed: %v", action, err))
			status = model.ExecutionFailed
			break
		}
		metrics.PlaybookActionsTotal.WithLabelValues(string(action), "success").Inc()
		logs = append(logs, line)
	}

	execution, err := e.store.RecordExecution(model.PlaybookExecution{
		Org:        incident.Org,
		PlaybookID: playbook.ID,
		IncidentID: incident.ID,
		Status:     status,
		Logs:       logs,
	})
	if err != nil {
		return model.PlaybookExecution{}, fmt.Errorf("failed to record execution: %w", err)
	}

	statusLabel := "success"
	if status == model.ExecutionFailed {
		statusLabel = "failed"
	}
	metrics.PlaybookExecutionsTotal.WithLabelValues(statusLabel).Inc()

	e.log.Info("Playbook executed",
		logger.String("playbook_id", playbook.ID),
		logger.String("incident_id", incident.ID),
		logger.String("status", string(status)))
	return execution, nil
}

func (e *Engine) runAction(action model.Action, incident model.Incident) (string, error) {
	switch action {
	case model.ActionBlockIP:
		if incident.ActorIP == "" {
			// Nothing to block; skipping is the recorded outcome, not a failure.
			return "BLOCK_IP skipped: incident has no actor IP", nil
		}
		reason := fmt.Sprintf("playbook response to incident %s", incident.ID)
		if _, err := e.blocker.Block(incident.Org, incident.ActorIP, reason, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("BLOCK_IP applied to %s", incident.ActorIP), nil

	case model.ActionNotifyAdmin:
		e.log.Warn("ADMIN NOTIFICATION",
			logger.String("org", incident.Org),
			logger.String("incident_id", incident.ID),
			logger.String("severity", string(incident.Severity)),
			logger.String("summary", incident.Summary))
		return "NOTIFY_ADMIN dispatched", nil
	}
	return "", fmt.Errorf("unknown action %q", action)
}
