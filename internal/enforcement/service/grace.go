package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/planfence/planfence/internal/callback"
	"github.com/planfence/planfence/internal/enforcement/domain"
	"github.com/planfence/planfence/internal/enforcement/repository"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

// markExceeded flips the row into grace, appending the grace_start event in
// the same transaction. Idempotent: a row already exceeded is left alone and
// no second event fires.
func (s *service) markExceeded(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, md domain.Metadata, winStart, winEnd time.Time) (*domain.EnforcementState, error) {
	var started bool
	var deadline time.Time
	st, err := s.states.Mutate(ctx, ref, cfg.Key, true, func(tx *gorm.DB, st *domain.EnforcementState) (repository.Outcome, error) {
		if st.ExceededAt != nil {
			return repository.OutcomeNone, nil
		}
		now := s.clock.Now().UTC()
		st.ExceededAt = &now
		if st.Data == nil {
			st.Data = map[string]any{}
		}
		st.Data[domain.DataGraceSeconds] = cfg.Grace.Seconds()
		if cfg.PerPeriod() {
			st.SetWindow(winStart, winEnd)
		}
		deadline = now.Add(cfg.Grace)
		started = true
		ev := &domain.EnforcementEvent{
			OwnerType: ref.Kind,
			OwnerID:   ref.ID,
			LimitKey:  cfg.Key,
			EventType: string(callback.EventGraceStart),
			Payload: map[string]any{
				"used":          md.Used,
				"limit":         md.Limit,
				"grace_ends_at": deadline.Format(time.RFC3339),
			},
		}
		if err := s.states.AppendEvent(ctx, tx, ev); err != nil {
			return repository.OutcomeNone, err
		}
		return repository.OutcomeSave, nil
	})
	if err != nil {
		return nil, err
	}
	if started {
		s.metrics.IncTransition(cfg.Key, string(callback.EventGraceStart))
		s.dispatcher.Dispatch(ctx, callback.Event{
			Type:       callback.EventGraceStart,
			Owner:      ref,
			LimitKey:   cfg.Key,
			OccurredAt: s.clock.Now().UTC(),
			Payload: map[string]any{
				"used":          md.Used,
				"limit":         md.Limit,
				"grace_ends_at": deadline,
			},
		})
	}
	return st, nil
}

// markBlocked flips the row into the blocked terminal state. Idempotent the
// same way markExceeded is. Blocking without a prior exceedance (block_usage
// policy) also stamps ExceededAt so the row records when trouble began.
func (s *service) markBlocked(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, md domain.Metadata, winStart, winEnd time.Time) (*domain.EnforcementState, error) {
	var blocked bool
	st, err := s.states.Mutate(ctx, ref, cfg.Key, true, func(tx *gorm.DB, st *domain.EnforcementState) (repository.Outcome, error) {
		if st.BlockedAt != nil {
			return repository.OutcomeNone, nil
		}
		now := s.clock.Now().UTC()
		st.BlockedAt = &now
		if st.ExceededAt == nil {
			st.ExceededAt = &now
		}
		if cfg.PerPeriod() {
			st.SetWindow(winStart, winEnd)
		}
		blocked = true
		ev := &domain.EnforcementEvent{
			OwnerType: ref.Kind,
			OwnerID:   ref.ID,
			LimitKey:  cfg.Key,
			EventType: string(callback.EventBlock),
			Payload: map[string]any{
				"used":  md.Used,
				"limit": md.Limit,
			},
		}
		if err := s.states.AppendEvent(ctx, tx, ev); err != nil {
			return repository.OutcomeNone, err
		}
		return repository.OutcomeSave, nil
	})
	if err != nil {
		return nil, err
	}
	if blocked {
		s.metrics.IncTransition(cfg.Key, string(callback.EventBlock))
		s.dispatcher.Dispatch(ctx, callback.Event{
			Type:       callback.EventBlock,
			Owner:      ref,
			LimitKey:   cfg.Key,
			OccurredAt: s.clock.Now().UTC(),
			Payload: map[string]any{
				"used":  md.Used,
				"limit": md.Limit,
			},
		})
	}
	return st, nil
}

// maybeEmitWarning records that threshold was notified and fires the warning
// event, but only when it is higher than the last one already sent. Warnings
// only move up; re-crossing a notified threshold stays silent until the
// window rolls over and the row is recreated.
func (s *service) maybeEmitWarning(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, threshold float64, used int64, winStart, winEnd time.Time) (bool, error) {
	var fired bool
	_, err := s.states.Mutate(ctx, ref, cfg.Key, true, func(tx *gorm.DB, st *domain.EnforcementState) (repository.Outcome, error) {
		if st.LastWarningThreshold != nil && *st.LastWarningThreshold >= threshold {
			return repository.OutcomeNone, nil
		}
		now := s.clock.Now().UTC()
		t := threshold
		st.LastWarningThreshold = &t
		st.LastWarningAt = &now
		if cfg.PerPeriod() {
			st.SetWindow(winStart, winEnd)
		}
		fired = true
		ev := &domain.EnforcementEvent{
			OwnerType: ref.Kind,
			OwnerID:   ref.ID,
			LimitKey:  cfg.Key,
			EventType: string(callback.EventWarning),
			Payload: map[string]any{
				"threshold": threshold,
				"used":      used,
				"limit":     cfg.Cap,
			},
		}
		if err := s.states.AppendEvent(ctx, tx, ev); err != nil {
			return repository.OutcomeNone, err
		}
		return repository.OutcomeSave, nil
	})
	if err != nil {
		return false, err
	}
	if fired {
		s.metrics.IncTransition(cfg.Key, string(callback.EventWarning))
		s.dispatcher.Dispatch(ctx, callback.Event{
			Type:       callback.EventWarning,
			Owner:      ref,
			LimitKey:   cfg.Key,
			OccurredAt: s.clock.Now().UTC(),
			Payload: map[string]any{
				"threshold": threshold,
				"used":      used,
				"limit":     cfg.Cap,
			},
		})
	}
	return fired, nil
}

// heal reconciles a stale row against reality before evaluation. A row whose
// stored window no longer matches the current one belongs to a previous
// period and is destroyed. A flagged row whose usage has dropped back below
// the cap has its flags cleared; warning bookkeeping stays so thresholds
// remain monotonic within the window.
func (s *service) heal(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, st *domain.EnforcementState, used int64, winStart time.Time) (*domain.EnforcementState, error) {
	if st == nil {
		return nil, nil
	}
	if cfg.PerPeriod() && !st.WindowMatches(winStart) {
		return s.states.Mutate(ctx, ref, cfg.Key, false, func(tx *gorm.DB, locked *domain.EnforcementState) (repository.Outcome, error) {
			if locked == nil {
				return repository.OutcomeNone, nil
			}
			if locked.WindowMatches(winStart) {
				// Another evaluation already rolled it forward.
				return repository.OutcomeNone, nil
			}
			return repository.OutcomeDelete, nil
		})
	}
	if st.Flagged() && recoveredNow(used, cfg.Cap) {
		return s.states.Mutate(ctx, ref, cfg.Key, false, func(tx *gorm.DB, locked *domain.EnforcementState) (repository.Outcome, error) {
			if locked == nil || !locked.Flagged() {
				return repository.OutcomeNone, nil
			}
			locked.ExceededAt = nil
			locked.BlockedAt = nil
			delete(locked.Data, domain.DataGraceSeconds)
			return repository.OutcomeSave, nil
		})
	}
	return st, nil
}
