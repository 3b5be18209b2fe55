package model

import (
	"fmt"
	"net"
	"time"
)

// EntityType identifies what kind of actor a baseline or incident is keyed on.
type EntityType string

const (
	EntityUser EntityType = "user"
	EntityIP   EntityType = "ip"
)

// Valid reports whether the entity type is one of the closed set.
func (t EntityType) Valid() bool {
	return t == EntityUser || t == EntityIP
}

// ValidateOrg rejects org identifiers unsafe for storage keys, which are
// ":"-joined. Only [a-zA-Z0-9._-] is accepted so one org's prefix scan can
// never sweep another org's records.
func ValidateOrg(org string) error {
	if org == "" {
		return &ValidationError{Field: "org", Reason: "missing"}
	}
	if len(org) > 64 {
		return &ValidationError{Field: "org", Reason: "must be at most 64 characters"}
	}
	for _, r := range org {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return &ValidationError{Field: "org", Reason: fmt.Sprintf("invalid character %q", r)}
		}
	}
	return nil
}

// ActorKey is the (org, entity_type, entity_id) tuple baselines and
// incidents are keyed on. It is derived, never stored.
type ActorKey struct {
	Org        string
	EntityType EntityType
	EntityID   string
}

func (k ActorKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Org, k.EntityType, k.EntityID)
}

// Observation is a single behavioral data point: the hour of day the
// activity happened (fractional, [0,24)) and the source IP.
type Observation struct {
	Hour float64 `json:"hour"`
	IP   string  `json:"ip"`
}

// Validate rejects malformed observations before any state is touched.
func (o Observation) Validate() error {
	if o.Hour < 0 || o.Hour >= 24 {
		return &ValidationError{Field: "hour", Reason: fmt.Sprintf("must be in [0,24), got %g", o.Hour)}
	}
	if o.IP == "" {
		return &ValidationError{Field: "ip", Reason: "missing"}
	}
	if net.ParseIP(o.IP) == nil {
		return &ValidationError{Field: "ip", Reason: fmt.Sprintf("not a valid address: %q", o.IP)}
	}
	return nil
}

// AnomalyEvent is an immutable detection record, persisted whenever the
// scorer flags an observation.
type AnomalyEvent struct {
	ID            uint64         `json:"id"`
	Org           string         `json:"org"`
	EventType     string         `json:"event_type"`
	SeverityScore float64        `json:"severity_score"`
	Confidence    float64        `json:"confidence"`
	Details       AnomalyDetails `json:"details"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AnomalyDetails carries the actor context the correlation engine needs to
// resolve an event back to its actor.
type AnomalyDetails struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	IP         string     `json:"ip"`
	Reason     string     `json:"reason"`
}

// AnomalyResult is the scorer's verdict for one observation.
type AnomalyResult struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
