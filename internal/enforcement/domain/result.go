package domain

import (
	"time"

	"github.com/planfence/planfence/internal/owner"
)

// State is the outcome severity of an evaluation.
type State string

const (
	StateWithin  State = "within"
	StateWarning State = "warning"
	StateGrace   State = "grace"
	StateBlocked State = "blocked"
)

// Metadata carries the usage figures behind a Result.
type Metadata struct {
	Used           int64      `json:"used"`
	Limit          int64      `json:"limit"`
	PercentUsed    float64    `json:"percent_used"`
	Remaining      int64      `json:"remaining"`
	GraceEndsAt    *time.Time `json:"grace_ends_at,omitempty"`
	SystemOverride bool       `json:"system_override,omitempty"`
}

// Result is what an evaluation returns to the caller.
type Result struct {
	State    State     `json:"state"`
	Message  string    `json:"message,omitempty"`
	LimitKey string    `json:"limit_key"`
	Owner    owner.Ref `json:"owner"`
	Metadata Metadata  `json:"metadata"`
}

// Allowed reports whether the guarded action may proceed. Trusted callers
// that evaluated with a system override may proceed even when blocked.
func (r Result) Allowed() bool {
	return r.State != StateBlocked || r.Metadata.SystemOverride
}
