package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gorm.io/datatypes"

	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/enforcement/domain"
	obsmetrics "github.com/planfence/planfence/internal/observability/metrics"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/pkg/db"
)

const (
	lockAttempts = 3
	lockBackoff  = 50 * time.Millisecond
)

// Outcome tells Mutate what to do with the locked row after the
// mutation callback returns.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSave
	OutcomeDelete
)

// MutateFunc runs inside the mutating transaction with the row locked.
// st is nil when the row does not exist and ensure was false.
type MutateFunc func(tx *gorm.DB, st *domain.EnforcementState) (Outcome, error)

// StateRepository persists enforcement state rows and their event trail.
type StateRepository struct {
	db      *gorm.DB
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewStateRepository(gdb *gorm.DB, genID *snowflake.Node, clk clock.Clock, log *zap.Logger, metrics *obsmetrics.Metrics) *StateRepository {
	return &StateRepository{
		db:      gdb,
		genID:   genID,
		clock:   clk,
		log:     log.Named("enforcement.repository"),
		metrics: metrics,
	}
}

// Find reads the state row without locking. Returns nil when absent.
func (r *StateRepository) Find(ctx context.Context, ref owner.Ref, limitKey string) (*domain.EnforcementState, error) {
	var st domain.EnforcementState
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND limit_key = ?", ref.Kind, ref.ID, limitKey).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Mutate runs fn against the (owner, limit) row under an exclusive row
// lock, creating the row first when ensure is true. Lock contention is
// retried a bounded number of times with backoff.
func (r *StateRepository) Mutate(ctx context.Context, ref owner.Ref, limitKey string, ensure bool, fn MutateFunc) (*domain.EnforcementState, error) {
	var lastErr error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		st, err := r.mutateOnce(ctx, ref, limitKey, ensure, fn)
		if err == nil {
			return st, nil
		}
		if !db.IsLockContentionErr(err) {
			return nil, err
		}
		lastErr = err
		r.metrics.IncLockRetry()
		r.log.Warn("lock contention on enforcement state",
			zap.String("owner", ref.String()),
			zap.String("limit_key", limitKey),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * lockBackoff):
		}
	}
	return nil, fmt.Errorf("enforcement state for %s/%s: %w", ref, limitKey, lastErr)
}

func (r *StateRepository) mutateOnce(ctx context.Context, ref owner.Ref, limitKey string, ensure bool, fn MutateFunc) (*domain.EnforcementState, error) {
	var result *domain.EnforcementState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := r.lockedFind(tx, ref, limitKey)
		if err != nil {
			return err
		}
		if st == nil {
			if !ensure {
				out, err := fn(tx, nil)
				if err != nil {
					return err
				}
				if out != OutcomeNone {
					return domain.ErrStateConflict
				}
				return nil
			}
			if err := r.createRow(tx, ref, limitKey); err != nil {
				return err
			}
			// Re-find under lock: a concurrent transaction may have
			// won the insert race.
			if st, err = r.lockedFind(tx, ref, limitKey); err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("enforcement state for %s/%s vanished after create", ref, limitKey)
			}
		}
		out, err := fn(tx, st)
		if err != nil {
			return err
		}
		switch out {
		case OutcomeSave:
			st.UpdatedAt = r.clock.Now().UTC()
			if err := tx.Save(st).Error; err != nil {
				return err
			}
			result = st
		case OutcomeDelete:
			if err := tx.Delete(&domain.EnforcementState{}, "id = ?", st.ID).Error; err != nil {
				return err
			}
			result = nil
		default:
			result = st
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *StateRepository) lockedFind(tx *gorm.DB, ref owner.Ref, limitKey string) (*domain.EnforcementState, error) {
	q := tx.Where("owner_type = ? AND owner_id = ? AND limit_key = ?", ref.Kind, ref.ID, limitKey)
	if supportsRowLock(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	start := time.Now()
	var st domain.EnforcementState
	err := q.First(&st).Error
	r.metrics.ObserveLockWait(time.Since(start))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *StateRepository) createRow(tx *gorm.DB, ref owner.Ref, limitKey string) error {
	now := r.clock.Now().UTC()
	st := domain.EnforcementState{
		ID:        r.genID.Generate(),
		OwnerType: ref.Kind,
		OwnerID:   ref.ID,
		LimitKey:  limitKey,
		Data:      datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Losing the insert race is fine, the re-find picks up the winner.
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&st).Error
}

// AppendEvent writes an event row, inside the transition transaction when
// tx is non-nil so the event commits atomically with the state change.
func (r *StateRepository) AppendEvent(ctx context.Context, tx *gorm.DB, ev *domain.EnforcementEvent) error {
	if tx == nil {
		tx = r.db.WithContext(ctx)
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.clock.Now().UTC()
	}
	return tx.Create(ev).Error
}

// RecentEvents lists the latest events for an owner, newest first. ULIDs
// sort lexicographically by time so ordering by id is ordering by time.
func (r *StateRepository) RecentEvents(ctx context.Context, ref owner.Ref, limit int) ([]domain.EnforcementEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var evs []domain.EnforcementEvent
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", ref.Kind, ref.ID).
		Order("id DESC").
		Limit(limit).
		Find(&evs).Error
	return evs, err
}

// sqlite has no SELECT ... FOR UPDATE; its writers serialize on the
// database file instead.
func supportsRowLock(tx *gorm.DB) bool {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
