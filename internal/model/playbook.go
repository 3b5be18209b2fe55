package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is a playbook response action.
type Action string

const (
	ActionBlockIP     Action = "BLOCK_IP"
	ActionNotifyAdmin Action = "NOTIFY_ADMIN"
)

func (a Action) Valid() bool {
	return a == ActionBlockIP || a == ActionNotifyAdmin
}

// TriggerCondition is a conjunctive equality predicate over incident
// attributes. Only the closed set of keys below is accepted; unrecognized
// keys are rejected at decode time, not deep inside evaluation.
type TriggerCondition struct {
	Severity       *Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	Status         *IncidentStatus `json:"status,omitempty" yaml:"status,omitempty"`
	KillChainStage *KillChainStage `json:"kill_chain_stage,omitempty" yaml:"kill_chain_stage,omitempty"`
}

// Validate checks every set field against its closed enum.
func (t TriggerCondition) Validate() error {
	if t.Severity != nil && !t.Severity.Valid() {
		return &ValidationError{Field: "trigger_condition.severity", Reason: string(*t.Severity)}
	}
	if t.Status != nil && !t.Status.Valid() {
		return &ValidationError{Field: "trigger_condition.status", Reason: string(*t.Status)}
	}
	if t.KillChainStage != nil && !t.KillChainStage.Valid() {
		return &ValidationError{Field: "trigger_condition.kill_chain_stage", Reason: string(*t.KillChainStage)}
	}
	return nil
}

// Empty reports whether no attribute is constrained. An empty condition
// matches nothing, so a misconfigured playbook cannot fire on every incident.
func (t TriggerCondition) Empty() bool {
	return t.Severity == nil && t.Status == nil && t.KillChainStage == nil
}

// Matches applies the conjunctive equality predicate to an incident.
func (t TriggerCondition) Matches(inc *Incident) bool {
	if t.Empty() {
		return false
	}
	if t.Severity != nil && *t.Severity != inc.Severity {
		return false
	}
	if t.Status != nil && *t.Status != inc.Status {
		return false
	}
	if t.KillChainStage != nil && *t.KillChainStage != inc.KillChainStage {
		return false
	}
	return true
}

// UnmarshalJSON rejects unknown condition keys so admin typos surface at the
// boundary instead of silently never matching.
func (t *TriggerCondition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		switch key {
		case "severity", "status", "kill_chain_stage":
		default:
			return &ValidationError{Field: "trigger_condition", Reason: fmt.Sprintf("unknown attribute %q", key)}
		}
	}
	type alias TriggerCondition
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*t = TriggerCondition(decoded)
	return t.Validate()
}

// Playbook is a declarative condition -> actions automation rule. The engine
// treats playbooks as read-only; management is an admin concern.
type Playbook struct {
	ID          string           `json:"id" yaml:"id"`
	Org         string           `json:"org" yaml:"org"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     TriggerCondition `json:"trigger_condition" yaml:"trigger_condition"`
	Actions     []Action         `json:"actions" yaml:"actions"`
	IsActive    bool             `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time        `json:"updated_at" yaml:"-"`
}

// Validate checks the playbook's shape: a non-empty typed condition and a
// closed action list.
func (p *Playbook) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "missing"}
	}
	if err := p.Trigger.Validate(); err != nil {
		return err
	}
	if p.Trigger.Empty() {
		return &ValidationError{Field: "trigger_condition", Reason: "at least one attribute required"}
	}
	if len(p.Actions) == 0 {
		return &ValidationError{Field: "actions", Reason: "at least one action required"}
	}
	for _, action := range p.Actions {
		if !action.Valid() {
			return &ValidationError{Field: "actions", Reason: fmt.Sprintf("unknown action %q", action)}
		}
	}
	return nil
}

// ExecutionStatus is the terminal state of a playbook run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// PlaybookExecution is the immutable audit record written once per matched
// evaluation, whether the run succeeded or failed.
type PlaybookExecution struct {
	ID         string          `json:"id"`
	Org        string          `json:"org"`
	PlaybookID string          `json:"playbook_id"`
	IncidentID string          `json:"incident_id"`
	Status     ExecutionStatus `json:"status"`
	Logs       []string        `json:"logs"`
	CreatedAt  time.Time       `json:"created_at"`
}
