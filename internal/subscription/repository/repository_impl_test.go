package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/subscription/domain"
)

func setupRepo(t *testing.T, clk clock.Clock) domain.Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&domain.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return New(db, node, clk)
}

func TestCurrentPeriodLifecycle(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC))
	repo := setupRepo(t, clk)
	ctx := context.Background()
	ref := owner.Ref{Kind: "org", ID: "1"}

	// No subscription yet.
	_, _, ok, err := repo.CurrentPeriod(ctx, ref)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if ok {
		t.Fatal("missing subscription must report ok=false")
	}

	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	if err := repo.UpsertPeriod(ctx, ref, domain.StatusActive, start, end); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	gotStart, gotEnd, ok, err := repo.CurrentPeriod(ctx, ref)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if !ok || !gotStart.Equal(start) || !gotEnd.Equal(end) {
		t.Fatalf("period = [%v, %v) ok=%v, want [%v, %v) ok=true", gotStart, gotEnd, ok, start, end)
	}

	// Past the period end the repo stops vouching for it.
	clk.Set(end.Add(time.Hour))
	if _, _, ok, _ = repo.CurrentPeriod(ctx, ref); ok {
		t.Fatal("lapsed period must report ok=false")
	}
}

func TestCanceledSubscriptionIgnored(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC))
	repo := setupRepo(t, clk)
	ctx := context.Background()
	ref := owner.Ref{Kind: "org", ID: "1"}

	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if err := repo.UpsertPeriod(ctx, ref, domain.StatusCanceled, start, start.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sub, err := repo.ActiveForOwner(ctx, ref)
	if err != nil {
		t.Fatalf("active for owner: %v", err)
	}
	if sub != nil {
		t.Fatal("canceled subscription must not count as active")
	}
	if _, _, ok, _ := repo.CurrentPeriod(ctx, ref); ok {
		t.Fatal("canceled subscription must report ok=false")
	}
}

func TestUpsertRejectsInvertedPeriod(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	repo := setupRepo(t, clk)

	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	err := repo.UpsertPeriod(context.Background(), owner.Ref{Kind: "org", ID: "1"}, domain.StatusActive, start, start)
	if !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestUpsertReplacesPeriod(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC))
	repo := setupRepo(t, clk)
	ctx := context.Background()
	ref := owner.Ref{Kind: "org", ID: "1"}

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.UpsertPeriod(ctx, ref, domain.StatusActive, start, start.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	next := start.AddDate(0, 1, 0)
	if err := repo.UpsertPeriod(ctx, ref, domain.StatusActive, next, next.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	clk.Set(next.Add(24 * time.Hour))
	gotStart, _, ok, err := repo.CurrentPeriod(ctx, ref)
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if !ok || !gotStart.Equal(next) {
		t.Fatalf("start = %v ok=%v, want %v ok=true", gotStart, ok, next)
	}
}
