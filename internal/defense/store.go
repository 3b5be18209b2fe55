package defense

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const blockedPrefix = "blk:"

// Store tracks actors blocked by response actions. Blocks may carry an
// expiry; expired entries are treated as absent and lazily removed.
type Store struct {
	engine persistence.Engine
	log    logger.Logger
}

// NewStore creates a blocked-actor store.
func NewStore(engine persistence.Engine, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Store{engine: engine, log: log}
}

// Block records a blocked actor. A zero expiry blocks indefinitely.
func (s *Store) Block(org, ip, reason string, expiresAt *time.Time) (model.BlockedActor, error) {
	if org == "" {
		return model.BlockedActor{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}
	if ip == "" {
		return model.BlockedActor{}, &model.ValidationError{Field: "ip", Reason: "missing"}
	}

	blocked := model.BlockedActor{
		Org:       org,
		IP:        ip,
		Reason:    reason,
		BlockedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	raw, err := json.Marshal(blocked)
	if err != nil {
		return model.BlockedActor{}, err
	}
	if err := s.engine.Set(blockedKey(org, ip), raw); err != nil {
		return model.BlockedActor{}, err
	}

	metrics.BlockedActorsTotal.Inc()
	s.log.Info("Actor blocked",
		logger.String("org", org),
		logger.String("ip", ip),
		logger.String("reason", reason))
	return blocked, nil
}

// IsBlocked reports whether the IP is currently blocked for the org.
func (s *Store) IsBlocked(org, ip string) (bool, error) {
	raw, err := s.engine.Get(blockedKey(org, ip))
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var blocked model.BlockedActor
	if err := json.Unmarshal(raw, &blocked); err != nil {
		return false, err
	}

	if blocked.ExpiresAt != nil && time.Now().After(*blocked.ExpiresAt) {
		if err := s.engine.Delete(blockedKey(org, ip)); err != nil {
			s.log.Warn("Failed to remove expired block",
				logger.String("org", org),
				logger.String("ip", ip),
				logger.Error(err))
		}
		return false, nil
	}
	return true, nil
}

// List returns the org's current blocks, skipping expired ones.
func (s *Store) List(org string) ([]model.BlockedActor, error) {
	entries, err := s.engine.Scan(blockedPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	actors := make([]model.BlockedActor, 0, len(entries))
	for _, entry := range entries {
		var blocked model.BlockedActor
		if err := json.Unmarshal(entry.Value, &blocked); err != nil {
			s.log.Warn("Skipping corrupt blocked-actor record",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		if blocked.ExpiresAt != nil && now.After(*blocked.ExpiresAt) {
			continue
		}
		actors = append(actors, blocked)
	}
	return actors, nil
}

func blockedKey(org, ip string) string {
	return blockedPrefix + org + ":" + ip
}
