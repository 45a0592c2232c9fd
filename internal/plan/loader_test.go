package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePlansFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plans.yml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write plans.yml: %v", err)
	}
	return dir
}

func TestLoadPlansMissingFileFallsBack(t *testing.T) {
	plans, err := LoadPlans([]string{t.TempDir()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c, err := NewCatalog(plans)
	if err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.DefaultKey() != "free" {
		t.Fatalf("default key = %q, want free", c.DefaultKey())
	}
}

func TestLoadPlansFromFile(t *testing.T) {
	dir := writePlansFile(t, `
plans:
  - key: starter
    name: Starter
    default: true
    features:
      - api-access
    limits:
      - key: projects
        cap: 5
        policy: grace_then_block
        grace: 72h
        warn_at: [0.5, 0.9]
      - key: api-calls
        cap: 10000
        per: calendar_month
        policy: block_usage
  - key: business
    name: Business
    limits:
      - key: projects
        cap: 100
      - key: api-calls
        cap: -1
        per: calendar_month
      - key: exports
        cap: 10
        per: fixed
        every: 24h
`)

	plans, err := LoadPlans([]string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c, err := NewCatalog(plans)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	starter, ok := c.Plan("starter")
	if !ok {
		t.Fatal("starter plan missing")
	}
	cfg, ok := starter.LimitFor("projects")
	if !ok {
		t.Fatal("projects limit missing")
	}
	if cfg.Cap != 5 || cfg.Grace != 72*time.Hour {
		t.Fatalf("unexpected projects limit: %+v", cfg)
	}
	if len(cfg.WarningThresholds) != 2 || cfg.WarningThresholds[0] != 0.5 {
		t.Fatalf("unexpected thresholds: %v", cfg.WarningThresholds)
	}
	if !starter.HasFeature("api-access") {
		t.Fatal("starter should have api-access")
	}

	business, _ := c.Plan("business")
	if cfg, _ := business.LimitFor("api-calls"); !cfg.Unlimited() {
		t.Fatal("business api-calls should be unlimited")
	}
	if cfg, _ := business.LimitFor("exports"); cfg.Per != CycleFixed || cfg.Every != 24*time.Hour {
		t.Fatalf("unexpected exports limit: %+v", cfg)
	}
}

func TestLoadPlansBadGrace(t *testing.T) {
	dir := writePlansFile(t, `
plans:
  - key: starter
    default: true
    limits:
      - key: projects
        cap: 5
        grace: soonish
`)
	_, err := LoadPlans([]string{dir})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
