package model

import "time"

// Policy is the authentication gate decision derived from a risk score.
type Policy string

const (
	PolicyAllow Policy = "ALLOW"
	PolicyMFA   Policy = "MFA"
	PolicyBlock Policy = "BLOCK"
)

// DeviceSignal is the device-fingerprint collaborator's verdict, consumed
// as an opaque signal: 0 risk for a known device, positive for a new one.
type DeviceSignal struct {
	IsKnown   bool    `json:"is_known"`
	RiskScore float64 `json:"risk_score"`
	DeviceID  string  `json:"device_id,omitempty"`
}

// ThreatMatch is the threat-indicator lookup result for an IP.
type ThreatMatch struct {
	IsMalicious bool    `json:"is_malicious"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source,omitempty"`
	Description string  `json:"description,omitempty"`
}

// ThreatIndicator is one entry of an ingested intel feed.
type ThreatIndicator struct {
	Value       string    `json:"value"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
}

// RiskAssessment is the ephemeral composite score returned to the caller;
// it is computed per call and never persisted.
type RiskAssessment struct {
	TotalScore int      `json:"total_score"`
	Factors    []string `json:"factors"`
}

// BlockedActor is the response artifact created by the BLOCK_IP action.
type BlockedActor struct {
	Org       string     `json:"org"`
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TrapAsset is a deception trap identified by an opaque token. Any access
// to the token is by definition hostile.
type TrapAsset struct {
	Org             string            `json:"org"`
	Token           string            `json:"token"`
	AssetType       string            `json:"asset_type"`
	Label           string            `json:"label"`
	Config          map[string]string `json:"config,omitempty"`
	TriggeredCount  int               `json:"triggered_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
