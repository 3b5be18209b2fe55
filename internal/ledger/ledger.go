package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const (
	evidencePrefix = "ev:"
	timelinePrefix = "evix:"
)

// orgChain serializes appends for one org's chain. "Read tail hash, compute
// new hash, insert" must never interleave for the same org or the chain
// forks; holding this mutex across the full cycle enforces that
// structurally.
type orgChain struct {
	mu       sync.Mutex
	loaded   bool
	tailHash string
	length   int
}

// Ledger is the append-only, hash-chained forensic evidence store. Each org
// owns an independent chain rooted at the GENESIS sentinel.
type Ledger struct {
	engine persistence.Engine
	log    logger.Logger

	mu     sync.Mutex
	chains map[string]*orgChain
}

// New creates a forensic ledger backed by the given persistence engine.
func New(engine persistence.Engine, log logger.Logger) *Ledger {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Ledger{
		engine: engine,
		log:    log,
		chains: make(map[string]*orgChain),
	}
}

// Append records one evidence entry at the tail of the org's chain and
// returns the stored record with its id and hashes filled in.
func (l *Ledger) Append(org, evidenceType string, data map[string]any, incidentID string) (model.Evidence, error) {
	if org == "" {
		return model.Evidence{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}
	if evidenceType == "" {
		return model.Evidence{}, &model.ValidationError{Field: "evidence_type", Reason: "missing"}
	}
	if data == nil {
		return model.Evidence{}, &model.ValidationError{Field: "data", Reason: "missing"}
	}

	chain := l.chain(org)
	chain.mu.Lock()
	defer chain.mu.Unlock()

	if !chain.loaded {
		if err := l.loadChainLocked(org, chain); err != nil {
			metrics.LedgerAppendsTotal.WithLabelValues(evidenceType, "error").Inc()
			return model.Evidence{}, err
		}
	}

	canonical, err := canonicalize(data)
	if err != nil {
		return model.Evidence{}, &model.ValidationError{Field: "data", Reason: err.Error()}
	}

	id, err := l.engine.NextSequence("evidence:" + org)
	if err != nil {
		metrics.LedgerAppendsTotal.WithLabelValues(evidenceType, "error").Inc()
		return model.Evidence{}, err
	}

	evidence := model.Evidence{
		ID:           id,
		Org:          org,
		IncidentID:   incidentID,
		EvidenceType: evidenceType,
		Data:         data,
		Hash:         chainHash(chain.tailHash, evidenceType, canonical),
		PreviousHash: chain.tailHash,
		Timestamp:    time.Now().UTC(),
	}

	raw, err := json.Marshal(evidence)
	if err != nil {
		return model.Evidence{}, err
	}
	if err := l.engine.Set(evidenceKey(org, id), raw); err != nil {
		metrics.LedgerAppendsTotal.WithLabelValues(evidenceType, "error").Inc()
		return model.Evidence{}, err
	}

	if incidentID != "" {
		indexKey := fmt.Sprintf("%s%s:%016x:%016x", timelinePrefix, incidentID, evidence.Timestamp.UnixNano(), id)
		if err := l.engine.Set(indexKey, []byte(evidenceKey(org, id))); err != nil {
			// The primary record is already committed; a missing timeline
			// index entry degrades queries, not chain integrity.
			l.log.Warn("Failed to index evidence for incident timeline",
				logger.String("incident_id", incidentID),
				logger.Uint64("evidence_id", id),
				logger.Error(err))
		}
	}

	chain.tailHash = evidence.Hash
	chain.length++

	metrics.LedgerAppendsTotal.WithLabelValues(evidenceType, "success").Inc()
	metrics.LedgerChainLength.WithLabelValues(org).Set(float64(chain.length))

	return evidence, nil
}

// VerifyChain walks the org's records in id order, recomputing every hash
// from stored data and the running previous hash. A broken chain is a
// diagnostic result, never an error, and never stops ingestion.
func (l *Ledger) VerifyChain(org string) (model.VerifyResult, error) {
	entries, err := l.engine.Scan(evidencePrefix + org + ":")
	if err != nil {
		return model.VerifyResult{}, err
	}

	prevHash := model.GenesisHash
	for i, entry := range entries {
		var evidence model.Evidence
		if err := json.Unmarshal(entry.Value, &evidence); err != nil {
			return model.VerifyResult{}, fmt.Errorf("corrupt evidence record %s: %w", entry.Key, err)
		}

		canonical, err := canonicalize(evidence.Data)
		if err != nil {
			return model.VerifyResult{}, err
		}

		if chainHash(prevHash, evidence.EvidenceType, canonical) != evidence.Hash {
			metrics.LedgerVerificationsTotal.WithLabelValues("broken").Inc()
			return model.VerifyResult{
				Valid:    false,
				BrokenAt: evidence.ID,
				Reason:   model.BreakHashMismatch,
				Count:    i,
			}, nil
		}
		if evidence.PreviousHash != prevHash {
			metrics.LedgerVerificationsTotal.WithLabelValues("broken").Inc()
			return model.VerifyResult{
				Valid:    false,
				BrokenAt: evidence.ID,
				Reason:   model.BreakLinkBroken,
				Count:    i,
			}, nil
		}

		prevHash = evidence.Hash
	}

	metrics.LedgerVerificationsTotal.WithLabelValues("valid").Inc()
	return model.VerifyResult{Valid: true, Count: len(entries)}, nil
}

// Timeline returns all evidence linked to an incident, ordered by
// timestamp ascending.
func (l *Ledger) Timeline(incidentID string) ([]model.Evidence, error) {
	indexEntries, err := l.engine.Scan(timelinePrefix + incidentID + ":")
	if err != nil {
		return nil, err
	}

	timeline := make([]model.Evidence, 0, len(indexEntries))
	for _, indexEntry := range indexEntries {
		raw, err := l.engine.Get(string(indexEntry.Value))
		if err != nil {
			l.log.Warn("Dangling timeline index entry",
				logger.String("key", indexEntry.Key),
				logger.Error(err))
			continue
		}
		var evidence model.Evidence
		if err := json.Unmarshal(raw, &evidence); err != nil {
			return nil, fmt.Errorf("corrupt evidence record %s: %w", indexEntry.Value, err)
		}
		timeline = append(timeline, evidence)
	}

	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
	return timeline, nil
}

func (l *Ledger) chain(org string) *orgChain {
	l.mu.Lock()
	defer l.mu.Unlock()

	chain, ok := l.chains[org]
	if !ok {
		chain = &orgChain{}
		l.chains[org] = chain
	}
	return chain
}

// loadChainLocked recovers the tail hash and length from persisted records
// on first use of an org's chain after startup.
func (l *Ledger) loadChainLocked(org string, chain *orgChain) error {
	entries, err := l.engine.Scan(evidencePrefix + org + ":")
	if err != nil {
		return err
	}

	chain.tailHash = model.GenesisHash
	chain.length = len(entries)
	if len(entries) > 0 {
		var tail model.Evidence
		if err := json.Unmarshal(entries[len(entries)-1].Value, &tail); err != nil {
			return fmt.Errorf("corrupt evidence tail for org %s: %w", org, err)
		}
		chain.tailHash = tail.Hash
	}
	chain.loaded = true
	return nil
}

// canonicalize produces the deterministic serialization hashed into the
// chain. encoding/json sorts map keys at every nesting level, so the same
// data always yields the same bytes.
func canonicalize(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

func chainHash(prevHash, evidenceType string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte("|"))
	h.Write([]byte(evidenceType))
	h.Write([]byte("|"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

func evidenceKey(org string, id uint64) string {
	return fmt.Sprintf("%s%s:%016x", evidencePrefix, org, id)
}
