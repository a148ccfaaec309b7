package tier_test

import (
	"testing"

	"scribe/internal/config"
	"scribe/internal/tier"
)

func TestLimitsForFallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Owners.Tiers = map[string]string{"acct_pro": "pro"}

	catalog, err := tier.NewCatalog(&cfg)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	if got := catalog.LimitsFor("acct_pro").Name; got != "pro" {
		t.Fatalf("assigned owner tier = %q, want pro", got)
	}
	if got := catalog.LimitsFor("acct_unknown").Name; got != "free" {
		t.Fatalf("unassigned owner tier = %q, want free", got)
	}
}

func TestUnitLimitByKind(t *testing.T) {
	cfg := config.Default()
	catalog, err := tier.NewCatalog(&cfg)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	standard, ok := catalog.Lookup("standard")
	if !ok {
		t.Fatal("standard tier missing")
	}
	if got := standard.UnitLimit("transcribe"); got != 20 {
		t.Fatalf("transcribe limit = %v, want 20", got)
	}
	if got := standard.UnitLimit("summarize"); got != 200 {
		t.Fatalf("summarize limit = %v, want 200", got)
	}

	pro, _ := catalog.Lookup("pro")
	if got := pro.UnitLimit("transcribe"); got != tier.Unlimited {
		t.Fatalf("pro transcribe limit = %v, want unlimited sentinel", got)
	}
}

func TestNamesOrderedByPriority(t *testing.T) {
	cfg := config.Default()
	catalog, err := tier.NewCatalog(&cfg)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	names := catalog.Names()
	if len(names) != 3 || names[0] != "pro" || names[2] != "free" {
		t.Fatalf("unexpected tier order: %v", names)
	}
}

func TestNewCatalogRejectsUnknownAssignment(t *testing.T) {
	cfg := config.Default()
	cfg.Owners.Tiers = map[string]string{"acct": "platinum"}
	if _, err := tier.NewCatalog(&cfg); err == nil {
		t.Fatal("expected error for unknown tier assignment")
	}
}
