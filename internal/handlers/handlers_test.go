package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/praetorlabs/praetor/internal/anomaly"
	"github.com/praetorlabs/praetor/internal/baseline"
	"github.com/praetorlabs/praetor/internal/correlation"
	"github.com/praetorlabs/praetor/internal/ledger"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

func setupBehaviorApp() (*fiber.App, *baseline.Store) {
	engine := persistence.NewMemoryEngine()
	baselines := baseline.NewStore(baseline.Config{}, engine, nil)
	events := anomaly.NewEventStore(engine, nil)
	scorer := anomaly.NewScorer(anomaly.Config{}, baselines, events, nil, nil)
	handler := NewBehaviorHandler(baselines, scorer)

	app := fiber.New()
	app.Post("/observations", handler.Ingest)
	app.Post("/score", handler.Score)
	return app, baselines
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestBehaviorHandler_Ingest(t *testing.T) {
	app, baselines := setupBehaviorApp()

	resp := postJSON(t, app, "/observations", observationRequest{
		Org: "acme", EntityType: "user", EntityID: "alice", Hour: 9, IP: "10.0.0.1",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}

	snap, err := baselines.Snapshot(model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snap.Hours) != 1 {
		t.Errorf("expected one observation recorded, got %d", len(snap.Hours))
	}
}

func TestBehaviorHandler_IngestRejectsBadInput(t *testing.T) {
	app, _ := setupBehaviorApp()

	cases := []observationRequest{
		{Org: "", EntityType: "user", EntityID: "alice", Hour: 9, IP: "10.0.0.1"},
		{Org: "acme", EntityType: "robot", EntityID: "alice", Hour: 9, IP: "10.0.0.1"},
		{Org: "acme", EntityType: "user", EntityID: "alice", Hour: 25, IP: "10.0.0.1"},
		{Org: "acme", EntityType: "user", EntityID: "alice", Hour: 9, IP: "nope"},
	}
	for i, body := range cases {
		resp := postJSON(t, app, "/observations", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d", i, resp.StatusCode)
		}
	}
}

func TestBehaviorHandler_ScoreNewIP(t *testing.T) {
	app, _ := setupBehaviorApp()

	for i := 0; i < 4; i++ {
		postJSON(t, app, "/observations", observationRequest{
			Org: "acme", EntityType: "user", EntityID: "alice", Hour: 9, IP: "10.0.0.1",
		})
	}

	resp := postJSON(t, app, "/score", observationRequest{
		Org: "acme", EntityType: "user", EntityID: "alice", Hour: 9, IP: "192.168.1.9",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result model.AnomalyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !result.IsAnomaly || result.Score != 60 {
		t.Errorf("expected new-IP anomaly at 60, got %+v", result)
	}
}

func setupEvidenceApp() *fiber.App {
	l := ledger.New(persistence.NewMemoryEngine(), nil)
	handler := NewEvidenceHandler(l)

	app := fiber.New()
	app.Post("/evidence/:org", handler.Append)
	app.Get("/evidence/:org/verify", handler.Verify)
	app.Get("/evidence/timeline/:incident", handler.Timeline)
	return app
}

func TestEvidenceHandler_AppendAndVerify(t *testing.T) {
	app := setupEvidenceApp()

	for i := 0; i < 3; i++ {
		resp := postJSON(t, app, "/evidence/acme", map[string]any{
			"evidence_type": "login_attempt",
			"data":          map[string]any{"seq": i},
			"incident_id":   "incident-1",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/evidence/acme/verify", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var result model.VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !result.Valid || result.Count != 3 {
		t.Errorf("expected valid 3-record chain, got %+v", result)
	}

	req = httptest.NewRequest(http.MethodGet, "/evidence/timeline/incident-1", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var timeline []model.Evidence
	if err := json.NewDecoder(resp.Body).Decode(&timeline); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(timeline) != 3 {
		t.Errorf("expected 3 timeline entries, got %d", len(timeline))
	}
}

func TestEvidenceHandler_AppendRejectsMissingFields(t *testing.T) {
	app := setupEvidenceApp()

	resp := postJSON(t, app, "/evidence/acme", map[string]any{
		"data": map[string]any{"x": 1},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing evidence_type, got %d", resp.StatusCode)
	}
}

func setupIncidentApp() (*fiber.App, *correlation.IncidentStore) {
	engine := persistence.NewMemoryEngine()
	events := anomaly.NewEventStore(engine, nil)
	incidents := correlation.NewIncidentStore(engine, nil)
	correlator := correlation.NewEngine(correlation.Config{}, events, incidents, nil, nil)
	handler := NewIncidentHandler(correlator, incidents)

	app := fiber.New()
	app.Post("/correlate/:org", handler.Correlate)
	app.Get("/incidents/:org", handler.List)
	app.Patch("/incidents/:org/:id/status", handler.Transition)
	return app, incidents
}

func TestIncidentHandler_TransitionConflict(t *testing.T) {
	app, incidents := setupIncidentApp()

	created, err := incidents.Create(model.Incident{
		Org:            "acme",
		Severity:       model.SeverityMedium,
		KillChainStage: model.StageRecon,
		Summary:        "test incident",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	raw, _ := json.Marshal(map[string]string{"status": "RESOLVED"})
	req := httptest.NewRequest(http.MethodPatch, "/incidents/acme/"+created.ID+"/status", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Reopening a resolved incident conflicts.
	raw, _ = json.Marshal(map[string]string{"status": "OPEN"})
	req = httptest.NewRequest(http.MethodPatch, "/incidents/acme/"+created.ID+"/status", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestIncidentHandler_TransitionRejectsUnknownStatus(t *testing.T) {
	app, incidents := setupIncidentApp()

	created, err := incidents.Create(model.Incident{
		Org:            "acme",
		Severity:       model.SeverityMedium,
		KillChainStage: model.StageRecon,
		Summary:        "test incident",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A bogus status value is a plain bad request, not a lifecycle conflict.
	raw, _ := json.Marshal(map[string]string{"status": "ESCALATED"})
	req := httptest.NewRequest(http.MethodPatch, "/incidents/acme/"+created.ID+"/status", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrgParamRejectsKeySeparator(t *testing.T) {
	app, _ := setupIncidentApp()

	// An org containing the key separator could sweep another org's records.
	req := httptest.NewRequest(http.MethodGet, "/incidents/acme%3Aother", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBehaviorHandler_IngestRejectsBadOrg(t *testing.T) {
	app, _ := setupBehaviorApp()

	resp := postJSON(t, app, "/observations", observationRequest{
		Org: "acme:other", EntityType: "user", EntityID: "alice", Hour: 9, IP: "10.0.0.1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
