package deception

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorlabs/praetor/internal/correlation"
	"github.com/praetorlabs/praetor/internal/defense"
	"github.com/praetorlabs/praetor/internal/ledger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

func newTestService(t *testing.T) (*Service, *correlation.IncidentStore, *defense.Store, *ledger.Ledger) {
	t.Helper()
	engine := persistence.NewMemoryEngine()
	incidents := correlation.NewIncidentStore(engine, nil)
	defenses := defense.NewStore(engine, nil)
	forensics := ledger.New(engine, nil)
	return NewService(engine, incidents, defenses, forensics, nil), incidents, defenses, forensics
}

func TestCreateAssignsToken(t *testing.T) {
	service, _, _, _ := newTestService(t)

	trap, err := service.Create("acme", "honeytoken", "fake AWS key", map[string]string{"region": "us-east-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, trap.Token)
	assert.Equal(t, 0, trap.TriggeredCount)

	traps, err := service.List("acme")
	require.NoError(t, err)
	require.Len(t, traps, 1)
	assert.Equal(t, trap.Token, traps[0].Token)
}

func TestTriggerDrivesFullResponse(t *testing.T) {
	service, incidents, defenses, forensics := newTestService(t)

	trap, err := service.Create("acme", "honeytoken", "fake AWS key", nil)
	require.NoError(t, err)

	incident, err := service.Trigger(trap.Token, "203.0.113.7")
	require.NoError(t, err)

	// Any trap access is a confirmed hands-on-keyboard intrusion.
	assert.Equal(t, model.SeverityCritical, incident.Severity)
	assert.Equal(t, model.StageAction, incident.KillChainStage)
	assert.Equal(t, model.StatusOpen, incident.Status)
	assert.Equal(t, "203.0.113.7", incident.ActorIP)

	stored, err := incidents.Get("acme", incident.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.ID, stored.ID)

	blocked, err := defenses.IsBlocked("acme", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, blocked, "trap source must be blocked")

	timeline, err := forensics.Timeline(incident.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "trap_trigger", timeline[0].EvidenceType)
	assert.Equal(t, "203.0.113.7", timeline[0].Data["source_ip"])

	traps, err := service.List("acme")
	require.NoError(t, err)
	require.Len(t, traps, 1)
	assert.Equal(t, 1, traps[0].TriggeredCount)
	assert.NotNil(t, traps[0].LastTriggeredAt)
}

func TestTriggerUnknownToken(t *testing.T) {
	service, _, _, _ := newTestService(t)

	_, err := service.Trigger("no-such-token", "203.0.113.7")
	assert.True(t, model.IsNotFound(err), "expected not-found, got %v", err)
}
