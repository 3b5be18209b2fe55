package anomaly

import (
	"testing"
	"time"

	"github.com/praetorlabs/praetor/internal/baseline"
	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

func newTestScorer(t *testing.T) (*Scorer, *baseline.Store, *EventStore) {
	t.Helper()
	engine := persistence.NewMemoryEngine()
	baselines := baseline.NewStore(baseline.Config{WindowSize: 50, IPSetSize: 128}, engine, nil)
	events := NewEventStore(engine, nil)
	scorer := NewScorer(Config{MinSamples: 5, HighConfidenceSamples: 20}, baselines, events, NewZScoreDetector(), nil)
	return scorer, baselines, events
}

func feed(t *testing.T, baselines *baseline.Store, key model.ActorKey, n int, hour float64, ip string) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := baselines.Update(key, model.Observation{Hour: hour, IP: ip}); err != nil {
			t.Fatalf("baseline update failed: %v", err)
		}
	}
}

func TestScoreInsufficientBaselineKnownIP(t *testing.T) {
	scorer, baselines, events := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	feed(t, baselines, key, 4, 9, "10.0.0.1")

	result, err := scorer.Score(key, model.Observation{Hour: 9, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if result.IsAnomaly {
		t.Error("expected no anomaly on thin baseline with a known IP")
	}
	if result.Score != 0 || result.Confidence != 0 {
		t.Errorf("expected zero score and confidence, got %g/%g", result.Score, result.Confidence)
	}
	if result.Reason != "insufficient baseline" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}

	recorded, err := events.Recent(key.Org, time.Time{}, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recorded) != 0 {
		t.Errorf("normal verdicts must not persist events, got %d", len(recorded))
	}
}

func TestScoreInsufficientBaselineNewIP(t *testing.T) {
	scorer, baselines, _ := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	feed(t, baselines, key, 4, 9, "10.0.0.1")

	result, err := scorer.Score(key, model.Observation{Hour: 9, IP: "192.168.1.9"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !result.IsAnomaly {
		t.Fatal("expected anomaly for unseen IP on thin baseline")
	}
	if result.Score != 60 {
		t.Errorf("expected score 60, got %g", result.Score)
	}
	if result.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %g", result.Confidence)
	}
	if result.Reason != "new IP address (low baseline)" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreModelInlier(t *testing.T) {
	scorer, baselines, _ := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	// 30 samples around working hours, slight spread so stddev > 0.
	for i := 0; i < 30; i++ {
		hour := 9 + float64(i%3)
		feed(t, baselines, key, 1, hour, "10.0.0.1")
	}

	result, err := scorer.Score(key, model.Observation{Hour: 10, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if result.IsAnomaly {
		t.Errorf("expected inlier verdict, got anomaly: %+v", result)
	}
	if result.Score != 10 {
		t.Errorf("expected inlier base score 10, got %g", result.Score)
	}
	if result.Confidence != 0.8 {
		t.Errorf("expected high confidence on deep history, got %g", result.Confidence)
	}
}

func TestScoreModelOutlierHour(t *testing.T) {
	scorer, baselines, events := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	for i := 0; i < 30; i++ {
		hour := 9 + float64(i%3)
		feed(t, baselines, key, 1, hour, "10.0.0.1")
	}

	result, err := scorer.Score(key, model.Observation{Hour: 3, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !result.IsAnomaly {
		t.Fatalf("expected 03:00 to be an outlier against a 9-11 baseline: %+v", result)
	}
	if result.Score < 50 || result.Score > 100 {
		t.Errorf("outlier score must land in [50,100], got %g", result.Score)
	}
	if result.Reason != "unusual activity hour (03:00)" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}

	recorded, err := events.Recent(key.Org, time.Time{}, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected one persisted event, got %d", len(recorded))
	}
	event := recorded[0]
	if event.EventType != "login_anomaly" {
		t.Errorf("unexpected event type %q", event.EventType)
	}
	if event.Details.EntityID != "alice" || event.Details.IP != "10.0.0.1" {
		t.Errorf("event details mismatch: %+v", event.Details)
	}
	if event.SeverityScore != result.Score {
		t.Errorf("event severity %g != result score %g", event.SeverityScore, result.Score)
	}
}

func TestScoreNewIPForcesAnomaly(t *testing.T) {
	scorer, baselines, _ := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	for i := 0; i < 30; i++ {
		hour := 9 + float64(i%3)
		feed(t, baselines, key, 1, hour, "10.0.0.1")
	}

	// In-hours observation from a never-seen IP.
	result, err := scorer.Score(key, model.Observation{Hour: 10, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !result.IsAnomaly {
		t.Fatal("unseen IP must force the anomaly verdict")
	}
	if result.Score != 40 {
		t.Errorf("expected inlier base 10 + new-IP 30 = 40, got %g", result.Score)
	}
	if result.Reason != "new IP address" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreClampsAtHundred(t *testing.T) {
	scorer, baselines, _ := newTestScorer(t)
	key := model.ActorKey{Org: "acme", EntityType: model.EntityUser, EntityID: "alice"}

	// Identical history: stddev is zero, so any other hour scores maximally.
	feed(t, baselines, key, 30, 9, "10.0.0.1")

	result, err := scorer.Score(key, model.Observation{Hour: 3, IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !result.IsAnomaly {
		t.Fatal("expected anomaly")
	}
	if result.Score != 100 {
		t.Errorf("expected score clamped to 100, got %g", result.Score)
	}
	if result.Reason != "unusual activity hour (03:00) & new IP" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}
