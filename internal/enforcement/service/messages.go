package service

import (
	"fmt"
	"time"

	"github.com/planfence/planfence/internal/enforcement/domain"
)

// MessageBuilder renders the human-readable message on a Result. Supply
// your own through fx to localize or rebrand the wording.
type MessageBuilder func(res domain.Result, now time.Time) string

// DefaultMessage is the built-in wording.
func DefaultMessage(res domain.Result, now time.Time) string {
	md := res.Metadata
	switch res.State {
	case domain.StateWithin:
		return ""
	case domain.StateWarning:
		if md.Used > md.Limit {
			return fmt.Sprintf("%s limit exceeded (%d of %d used)", res.LimitKey, md.Used, md.Limit)
		}
		return fmt.Sprintf("approaching the %s limit: %.0f%% used (%d of %d)", res.LimitKey, md.PercentUsed, md.Used, md.Limit)
	case domain.StateGrace:
		msg := fmt.Sprintf("%s limit exceeded (%d of %d used)", res.LimitKey, md.Used, md.Limit)
		if md.GraceEndsAt != nil {
			msg += fmt.Sprintf("; grace period ends in %s", humanizeDuration(md.GraceEndsAt.Sub(now)))
		}
		return msg
	case domain.StateBlocked:
		return fmt.Sprintf("you have reached the %s limit (%d of %d used)", res.LimitKey, md.Used, md.Limit)
	}
	return ""
}

func notConfiguredMessage(limitKey, planKey string) string {
	return fmt.Sprintf("%s is not available on the %s plan", limitKey, planKey)
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d >= 2*time.Minute:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return "moments"
	}
}
