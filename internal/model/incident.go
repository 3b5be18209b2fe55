package model

import "time"

// IncidentStatus is the incident lifecycle state. OPEN incidents are the
// only correlation targets; there is no automatic path back from RESOLVED.
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "OPEN"
	StatusInvestigating IncidentStatus = "INVESTIGATING"
	StatusResolved      IncidentStatus = "RESOLVED"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// Severity is the incident severity scale.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// KillChainStage is the coarse attack-progression label on an incident.
type KillChainStage string

const (
	StageRecon        KillChainStage = "RECON"
	StageDelivery     KillChainStage = "DELIVERY"
	StageExploitation KillChainStage = "EXPLOITATION"
	StageAction       KillChainStage = "ACTION"
)

func (s KillChainStage) Valid() bool {
	switch s {
	case StageRecon, StageDelivery, StageExploitation, StageAction:
		return true
	}
	return false
}

// Incident is a mutable attack-campaign aggregate built by the correlation
// engine. LinkedEventIDs reference same-org AnomalyEvents only.
type Incident struct {
	ID             string         `json:"id"`
	Org            string         `json:"org"`
	Status         IncidentStatus `json:"status"`
	Severity       Severity       `json:"severity"`
	KillChainStage KillChainStage `json:"kill_chain_stage"`
	Summary        string         `json:"summary"`
	Description    string         `json:"description,omitempty"`
	ActorIP        string         `json:"actor_ip,omitempty"`
	ActorUserID    string         `json:"actor_user_id,omitempty"`
	LinkedEventIDs []uint64       `json:"linked_event_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ActorKey resolves the incident's actor, preferring the user id over the IP.
func (i *Incident) ActorKey() ActorKey {
	if i.ActorUserID != "" {
		return ActorKey{Org: i.Org, EntityType: EntityUser, EntityID: i.ActorUserID}
	}
	return ActorKey{Org: i.Org, EntityType: EntityIP, EntityID: i.ActorIP}
}

// HasLinkedEvent reports whether the event id is already linked.
func (i *Incident) HasLinkedEvent(id uint64) bool {
	for _, linked := range i.LinkedEventIDs {
		if linked == id {
			return true
		}
	}
	return false
}
