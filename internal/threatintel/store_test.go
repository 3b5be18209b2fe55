package threatintel

import (
	"testing"

	"github.com/praetorlabs/praetor/internal/model"
	"github.com/praetorlabs/praetor/internal/persistence"
)

func TestIngestAndCheck(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)

	err := store.Ingest("abuse-feed", []model.ThreatIndicator{
		{Value: "203.0.113.66", Description: "known C2 node", Confidence: 95},
		{Value: "198.51.100.4"},
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	match, err := store.CheckIP("203.0.113.66")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !match.IsMalicious || match.Confidence != 95 || match.Source != "abuse-feed" {
		t.Errorf("unexpected match: %+v", match)
	}

	// Unlisted confidence falls back to the default.
	match, err = store.CheckIP("198.51.100.4")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !match.IsMalicious || match.Confidence != defaultConfidence {
		t.Errorf("unexpected match: %+v", match)
	}
}

func TestCheckUnknownIPIsClean(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)

	match, err := store.CheckIP("10.0.0.1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if match.IsMalicious {
		t.Errorf("unknown IP must not match: %+v", match)
	}
}

func TestIngestRejectsEmptyValue(t *testing.T) {
	store := NewStore(persistence.NewMemoryEngine(), nil)

	err := store.Ingest("abuse-feed", []model.ThreatIndicator{{Value: ""}})
	if !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
