package domain

import (
	"context"
	"errors"

	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

var (
	ErrInvalidAmount = errors.New("enforcement.errors.invalid_amount")
	ErrStateConflict = errors.New("enforcement.errors.state_conflict")
)

// EvaluateRequest asks whether an owner may use Amount more units of a limit.
type EvaluateRequest struct {
	Owner          owner.Ref
	LimitKey       string
	Amount         int64
	SystemOverride bool
}

// PlanResolver yields the plan currently governing an owner.
type PlanResolver interface {
	EffectivePlanFor(ctx context.Context, ref owner.Ref) (plan.Plan, error)
}

// Service evaluates limits and records consumption against them.
type Service interface {
	// Evaluate checks the request against the owner's plan without
	// recording any usage.
	Evaluate(ctx context.Context, req EvaluateRequest) (Result, error)

	// Consume evaluates the request and, when the action is allowed,
	// records the requested amount against the limit's usage window.
	Consume(ctx context.Context, req EvaluateRequest) (Result, error)

	// RequireFeature returns a FeatureNotAvailableError when the owner's
	// plan does not include the named feature.
	RequireFeature(ctx context.Context, ref owner.Ref, feature string) error
}
