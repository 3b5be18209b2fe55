package deception

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praetorlabs/praetor/internal/correlation"
	"github.com/praetorlabs/praetor/internal/defense"
	"github.com/praetorlabs/praetor/internal/ledger"
	"github.com/praetorlabs/praetor/internal/logger"
	"github.com/praetorlabs/praetor/internal/metrics"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

const (
	trapPrefix      = "trap:"
	trapTokenPrefix = "trapix:"

	// Trap hits indicate a confirmed hostile source; the block is long-lived.
	trapBlockDuration = 365 * 24 * time.Hour
)

// Service manages deception trap assets. A trap is an opaque token planted
// where no legitimate workflow reaches it; any access is hostile by
// definition and drives the full response path at once.
type Service struct {
	engine    persistence.Engine
	incidents *correlation.IncidentStore
	defenses  *defense.Store
	forensics *ledger.Ledger
	log       logger.Logger
}

// NewService creates the deception trap service.
func NewService(engine persistence.Engine, incidents *correlation.IncidentStore, defenses *defense.Store, forensics *ledger.Ledger, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Service{
		engine:    engine,
		incidents: incidents,
		defenses:  defenses,
		forensics: forensics,
		log:       log,
	}
}

// Create plants a new trap and returns it with its generated token.
func (s *Service) Create(org, assetType, label string, config map[string]string) (model.TrapAsset, error) {
	if org == "" {
		return model.TrapAsset{}, &model.ValidationError{Field: "org", Reason: "missing"}
	}
	if assetType == "" {
		return model.TrapAsset{}, &model.ValidationError{Field: "asset_type", Reason: "missing"}
	}

	trap := model.TrapAsset{
		Org:       org,
		Token:     uuid.New().String(),
		AssetType: assetType,
		Label:     label,
		Config:    config,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.put(trap); err != nil {
		return model.TrapAsset{}, err
	}
	if err := s.engine.Set(trapTokenPrefix+trap.Token, []byte(trapKey(org, trap.Token))); err != nil {
		return model.TrapAsset{}, err
	}

	s.log.Info("Trap created",
		logger.String("org", org),
		logger.String("asset_type", assetType),
		logger.String("label", label))
	return trap, nil
}

// List returns the org's traps.
func (s *Service) List(org string) ([]model.TrapAsset, error) {
	entries, err := s.engine.Scan(trapPrefix + org + ":")
	if err != nil {
		return nil, err
	}

	traps := make([]model.TrapAsset, 0, len(entries))
	for _, entry := range entries {
		var trap model.TrapAsset
		if err := json.Unmarshal(entry.Value, &trap); err != nil {
			s.log.Warn("Skipping corrupt trap record",
				logger.String("key", entry.Key),
				logger.Error(err))
			continue
		}
		traps = append(traps, trap)
	}
	return traps, nil
}

// Trigger fires the trap identified by token: it opens a CRITICAL incident
// at the ACTION stage, blocks the source IP, and appends ledger evidence.
func (s *Service) Trigger(token, sourceIP string) (model.Incident, error) {
	trap, err := s.byToken(token)
	if err != nil {
		return model.Incident{}, err
	}

	now := time.Now().UTC()
	trap.TriggeredCount++
	trap.LastTriggeredAt = &now
	if err := s.put(trap); err != nil {
		return model.Incident{}, err
	}

	incident, err := s.incidents.Create(model.Incident{
		Org:            trap.Org,
		Status:         model.StatusOpen,
		Severity:       model.SeverityCritical,
		KillChainStage: model.StageAction,
		Summary:        fmt.Sprintf("Deception trap triggered: %s", trap.Label),
		Description:    fmt.Sprintf("trap %s (%s) accessed from %s", trap.Label, trap.AssetType, sourceIP),
		ActorIP:        sourceIP,
	})
	if err != nil {
		return model.Incident{}, err
	}
	metrics.IncidentsCreatedTotal.WithLabelValues(string(incident.Severity), string(incident.KillChainStage)).Inc()

	if sourceIP != "" {
		expires := now.Add(trapBlockDuration)
		if _, err := s.defenses.Block(trap.Org, sourceIP, "deception trap access", &expires); err != nil {
			s.log.Error("Failed to block trap source",
				logger.String("org", trap.Org),
				logger.String("ip", sourceIP),
				logger.Error(err))
		}
	}

	_, err = s.forensics.Append(trap.Org, "trap_trigger", map[string]any{
		"asset_type": trap.AssetType,
		"label":      trap.Label,
		"source_ip":  sourceIP,
	}, incident.ID)
	if err != nil {
		s.log.Error("Failed to record trap evidence",
			logger.String("incident_id", incident.ID),
			logger.Error(err))
	}

	metrics.TrapTriggersTotal.Inc()
	s.log.Warn("Deception trap triggered",
		logger.String("org", trap.Org),
		logger.String("label", trap.Label),
		logger.String("source_ip", sourceIP),
		logger.String("incident_id", incident.ID))
	return incident, nil
}

func (s *Service) byToken(token string) (model.TrapAsset, error) {
	key, err := s.engine.Get(trapTokenPrefix + token)
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return model.TrapAsset{}, &model.NotFoundError{Type: "trap", ID: token}
	}
	if err != nil {
		return model.TrapAsset{}, err
	}

	raw, err := s.engine.Get(string(key))
	if err != nil {
		return model.TrapAsset{}, err
	}
	var trap model.TrapAsset
	if err := json.Unmarshal(raw, &trap); err != nil {
		return model.TrapAsset{}, err
	}
	return trap, nil
}

func (s *Service) put(trap model.TrapAsset) error {
	raw, err := json.Marshal(trap)
	if err != nil {
		return err
	}
	return s.engine.Set(trapKey(trap.Org, trap.Token), raw)
}

func trapKey(org, token string) string {
	return trapPrefix + org + ":" + token
}
