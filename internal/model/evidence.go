package model

import "time"

// GenesisHash is the previous_hash sentinel for the first record of an
// org's evidence chain.
const GenesisHash = "GENESIS"

// Evidence is an immutable, hash-chained forensic record. Per-org records
// form a singly linked chain ordered by monotonically increasing id.
type Evidence struct {
	ID           uint64         `json:"id"`
	Org          string         `json:"org"`
	IncidentID   string         `json:"incident_id,omitempty"`
	EvidenceType string         `json:"evidence_type"`
	Data         map[string]any `json:"data"`
	Hash         string         `json:"cryptographic_hash"`
	PreviousHash string         `json:"previous_hash"`
	Timestamp    time.Time      `json:"timestamp"`
}

// BreakReason classifies a chain verification failure.
type BreakReason string

const (
	BreakHashMismatch BreakReason = "HASH_MISMATCH"
	BreakLinkBroken   BreakReason = "LINK_BROKEN"
)

// VerifyResult is the structured outcome of a chain verification walk. A
// broken chain is a diagnostic, not an error: ingestion continues regardless.
type VerifyResult struct {
	Valid    bool        `json:"valid"`
	BrokenAt uint64      `json:"broken_at,omitempty"`
	Reason   BreakReason `json:"reason,omitempty"`
	Count    int         `json:"count"`
}
