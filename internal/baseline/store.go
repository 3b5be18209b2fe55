package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const keyPrefix = "bl:"

// Config tunes the rolling baseline window and the bounded seen-IP set.
type Config struct {
	WindowSize int
	IPSetSize  int
}

// profileRecord is the persisted form of an actor's baseline.
type profileRecord struct {
	Org        string           `json:"org"`
	EntityType model.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Hours      []float64        `json:"hours"`
	IPs        []string         `json:"ips"` // oldest first, so reload preserves eviction order
	UpdatedAt  time.Time        `json:"updated_at"`
}

// actorState holds one actor's in-memory baseline. Its mutex serializes all
// read-modify-write cycles for that actor; different actors never contend.
type actorState struct {
	mu     sync.Mutex
	loaded bool
	hours  []float64
	ips    *lru.Cache[string, struct{}]
}

// Store maintains per-actor rolling behavioral baselines. Profiles are
// created on first observation and never deleted.
type Store struct {
	cfg    Config
	engine persistence.Engine
	log    logger.Logger

	mu     sync.Mutex
	actors map[string]*actorState
}

// NewStore creates a baseline store backed by the given persistence engine.
func NewStore(cfg Config, engine persistence.Engine, log logger.Logger) *Store {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if cfg.IPSetSize <= 0 {
		cfg.IPSetSize = 128
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Store{
		cfg:    cfg,
		engine: engine,
		log:    log,
		actors: make(map[string]*actorState),
	}
}

// Snapshot is a point-in-time copy of an actor's baseline, safe to read
// while the actor keeps updating.
type Snapshot struct {
	Hours []float64
	ips   map[string]struct{}
}

// SeenIP reports whether the IP is in the actor's seen set.
func (s Snapshot) SeenIP(ip string) bool {
	_, ok := s.ips[ip]
	return ok
}

// Update appends the observation hour to the actor's rolling window,
// trimming the head to the configured cap, and records the source IP.
func (s *Store) Update(key model.ActorKey, obs model.Observation) error {
	if err := obs.Validate(); err != nil {
		return err
	}

	state, err := s.acquire(key)
	if err != nil {
		return err
	}
	defer state.mu.Unlock()

	state.hours = append(state.hours, obs.Hour)
	if excess := len(state.hours) - s.cfg.WindowSize; excess > 0 {
		state.hours = state.hours[excess:]
	}
	state.ips.Add(obs.IP, struct{}{})

	return s.persistLocked(key, state)
}

// Snapshot returns a copy of the actor's current baseline. A never-seen
// actor yields an empty snapshot, not an error.
func (s *Store) Snapshot(key model.ActorKey) (Snapshot, error) {
	state, err := s.acquire(key)
	if err != nil {
		return Snapshot{}, err
	}
	defer state.mu.Unlock()

	snap := Snapshot{
		Hours: make([]float64, len(state.hours)),
		ips:   make(map[string]struct{}, state.ips.Len()),
	}
	copy(snap.Hours, state.hours)
	for _, ip := range state.ips.Keys() {
		snap.ips[ip] = struct{}{}
	}
	return snap, nil
}

// acquire returns the actor's state with its mutex held, loading the
// persisted profile on first access.
func (s *Store) acquire(key model.ActorKey) (*actorState, error) {
	id := key.String()

	s.mu.Lock()
	state, ok := s.actors[id]
	if !ok {
		cache, err := lru.New[string, struct{}](s.cfg.IPSetSize)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		state = &actorState{ips: cache}
		s.actors[id] = state
	}
	s.mu.Unlock()

	state.mu.Lock()
	if !state.loaded {
		if err := s.loadLocked(key, state); err != nil {
			state.mu.Unlock()
			return nil, err
		}
		state.loaded = true
	}
	return state, nil
}

func (s *Store) loadLocked(key model.ActorKey, state *actorState) error {
	raw, err := s.engine.Get(storageKey(key))
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var record profileRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("corrupt baseline profile for %s: %w", key, err)
	}

	state.hours = record.Hours
	for _, ip := range record.IPs {
		state.ips.Add(ip, struct{}{})
	}
	return nil
}

func (s *Store) persistLocked(key model.ActorKey, state *actorState) error {
	record := profileRecord{
		Org:        key.Org,
		EntityType: key.EntityType,
		EntityID:   key.EntityID,
		Hours:      state.hours,
		IPs:        state.ips.Keys(),
		UpdatedAt:  time.Now().UTC(),
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.engine.Set(storageKey(key), raw); err != nil {
		s.log.Error("Failed to persist baseline profile",
			logger.String("actor", key.String()),
			logger.Error(err))
		return err
	}
	return nil
}

func storageKey(key model.ActorKey) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, key.Org, key.EntityType, key.EntityID)
}
