package plan

import (
	"errors"
	"fmt"

	"github.com/planfence/planfence/internal/owner"
)

var (
	ErrInvalidConfiguration = errors.New("plan.errors.invalid_configuration")
	ErrPlanNotFound         = errors.New("plan.errors.plan_not_found")
	ErrFeatureNotAvailable  = errors.New("plan.errors.feature_not_available")
)

// FeatureNotAvailableError is raised when an owner's plan does not enable a
// feature. It carries the feature key and owner for request-handling code
// that wants an ergonomic early exit.
type FeatureNotAvailableError struct {
	Feature string
	Owner   owner.Ref
	PlanKey string
}

func (e *FeatureNotAvailableError) Error() string {
	return fmt.Sprintf("feature %q is not available on plan %q for %s", e.Feature, e.PlanKey, e.Owner)
}

func (e *FeatureNotAvailableError) Is(target error) bool {
	return target == ErrFeatureNotAvailable
}
