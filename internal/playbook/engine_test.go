package playbook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

type fakeBlocker struct {
	blocked []string
	fail    bool
}

func (f *fakeBlocker) Block(org, ip, reason string, expiresAt *time.Time) (model.BlockedActor, error) {
	if f.fail {
		return model.BlockedActor{}, fmt.Errorf("firewall unreachable")
	}
	f.blocked = append(f.blocked, org+"/"+ip)
	return model.BlockedActor{Org: org, IP: ip, Reason: reason}, nil
}

func severityPtr(s model.Severity) *model.Severity { return &s }

func criticalPlaybook(t *testing.T, store *Store, actions ...model.Action) model.Playbook {
	t.Helper()
	created, err := store.Create(model.Playbook{
		Org:      "acme",
		Name:     "contain critical incidents",
		Trigger:  model.TriggerCondition{Severity: severityPtr(model.SeverityCritical)},
		Actions:  actions,
		IsActive: true,
	})
	require.NoError(t, err)
	return created
}

func criticalIncident(ip string) model.Incident {
	return model.Incident{
		ID:             "incident-1",
		Org:            "acme",
		Status:         model.StatusOpen,
		Severity:       model.SeverityCritical,
		KillChainStage: model.StageAction,
		Summary:        "Deception trap triggered: fake creds",
		ActorIP:        ip,
	}
}

func TestEvaluateRunsMatchingPlaybook(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)
	blocker := &fakeBlocker{}
	engine := NewEngine(store, blocker, nil)

	pb := criticalPlaybook(t, store, model.ActionBlockIP, model.ActionNotifyAdmin)

	require.NoError(t, engine.Evaluate(criticalIncident("203.0.113.7")))

	assert.Equal(t, []string{"acme/203.0.113.7"}, blocker.blocked)

	executions, err := store.Executions("acme", "incident-1")
	require.NoError(t, err)
	require.Len(t, executions, 1, "exactly one execution record per matched playbook")
	execution := executions[0]
	assert.Equal(t, pb.ID, execution.PlaybookID)
	assert.Equal(t, model.ExecutionSuccess, execution.Status)
	assert.Len(t, execution.Logs, 3) // match line + two action lines
}

func TestEvaluateSkipsNonMatching(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)
	blocker := &fakeBlocker{}
	engine := NewEngine(store, blocker, nil)

	criticalPlaybook(t, store, model.ActionBlockIP)

	incident := criticalIncident("203.0.113.7")
	incident.Severity = model.SeverityHigh
	require.NoError(t, engine.Evaluate(incident))

	assert.Empty(t, blocker.blocked)
	executions, err := store.Executions("acme", "")
	require.NoError(t, err)
	assert.Empty(t, executions, "non-matching playbooks leave no execution record")
}

func TestEvaluateSkipsInactivePlaybooks(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)
	blocker := &fakeBlocker{}
	engine := NewEngine(store, blocker, nil)

	pb := criticalPlaybook(t, store, model.ActionBlockIP)
	_, err := store.SetActive("acme", pb.ID, false)
	require.NoError(t, err)

	require.NoError(t, engine.Evaluate(criticalIncident("203.0.113.7")))
	assert.Empty(t, blocker.blocked)
}

func TestBlockIPSkippedWithoutActorIP(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)
	blocker := &fakeBlocker{}
	engine := NewEngine(store, blocker, nil)

	criticalPlaybook(t, store, model.ActionBlockIP)

	require.NoError(t, engine.Evaluate(criticalIncident("")))

	assert.Empty(t, blocker.blocked)
	executions, err := store.Executions("acme", "incident-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	// A skipped action is a recorded outcome, not a failure.
	assert.Equal(t, model.ExecutionSuccess, executions[0].Status)
	assert.Contains(t, executions[0].Logs[1], "BLOCK_IP skipped")
}

func TestExecutionAbortsOnFirstFailure(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)
	blocker := &fakeBlocker{fail: true}
	engine := NewEngine(store, blocker, nil)

	criticalPlaybook(t, store, model.ActionBlockIP, model.ActionNotifyAdmin)

	require.NoError(t, engine.Evaluate(criticalIncident("203.0.113.7")))

	executions, err := store.Executions("acme", "incident-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	execution := executions[0]
	assert.Equal(t, model.ExecutionFailed, execution.Status)
	// Match line plus the failing action's line; NOTIFY_ADMIN never ran.
	require.Len(t, execution.Logs, 2)
	assert.Contains(t, execution.Logs[1], "BLOCK_IP failed")
}

func TestCreateRejectsInvalidPlaybooks(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)

	cases := []model.Playbook{
		{Org: "acme", Name: "", Trigger: model.TriggerCondition{Severity: severityPtr(model.SeverityHigh)}, Actions: []model.Action{model.ActionNotifyAdmin}},
		{Org: "acme", Name: "no condition", Actions: []model.Action{model.ActionNotifyAdmin}},
		{Org: "acme", Name: "no actions", Trigger: model.TriggerCondition{Severity: severityPtr(model.SeverityHigh)}},
		{Org: "acme", Name: "bad action", Trigger: model.TriggerCondition{Severity: severityPtr(model.SeverityHigh)}, Actions: []model.Action{"DELETE_EVERYTHING"}},
	}
	for i, pb := range cases {
		_, err := store.Create(pb)
		assert.True(t, model.IsValidation(err), "case %d: expected validation error, got %v", i, err)
	}
}
