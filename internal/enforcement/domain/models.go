// Package domain contains the persisted enforcement state machine models.
// One EnforcementState row exists per (owner, limit) pair, created lazily on
// the first warning or exceedance and healed away when usage falls back in
// range or the limit's window rolls over.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Keys of the EnforcementState data bag.
const (
	DataGraceSeconds     = "grace_period_seconds"
	DataWindowStartEpoch = "window_start_epoch"
	DataWindowEndEpoch   = "window_end_epoch"
)

// EnforcementState tracks exceeded/grace/blocked standing for one
// (owner, limit) pair. Mutated only under a row-level lock.
type EnforcementState struct {
	ID                   snowflake.ID      `gorm:"primaryKey"`
	OwnerType            string            `gorm:"type:text;not null;uniqueIndex:idx_enforcement_states_owner_key"`
	OwnerID              string            `gorm:"type:text;not null;uniqueIndex:idx_enforcement_states_owner_key"`
	LimitKey             string            `gorm:"type:text;not null;uniqueIndex:idx_enforcement_states_owner_key"`
	ExceededAt           *time.Time        `gorm:""`
	BlockedAt            *time.Time        `gorm:""`
	LastWarningThreshold *float64          `gorm:""`
	LastWarningAt        *time.Time        `gorm:""`
	Data                 datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EnforcementState) TableName() string { return "enforcement_states" }

// Flagged reports whether the row records an exceedance or block.
func (s *EnforcementState) Flagged() bool {
	return s.ExceededAt != nil || s.BlockedAt != nil
}

// GraceDeadline returns when the grace period ends, using the duration
// captured at exceedance time and falling back to the given configured one.
func (s *EnforcementState) GraceDeadline(fallback time.Duration) (time.Time, bool) {
	if s.ExceededAt == nil {
		return time.Time{}, false
	}
	grace := fallback
	if secs, ok := s.dataFloat(DataGraceSeconds); ok {
		grace = time.Duration(secs * float64(time.Second))
	}
	return s.ExceededAt.Add(grace), true
}

// WindowMatches reports whether the stored window boundaries match the
// window starting at start. Rows without stored boundaries always match.
func (s *EnforcementState) WindowMatches(start time.Time) bool {
	epoch, ok := s.dataInt64(DataWindowStartEpoch)
	if !ok {
		return true
	}
	return epoch == start.UTC().Unix()
}

// SetWindow stores the current window boundaries used to detect staleness.
func (s *EnforcementState) SetWindow(start, end time.Time) {
	if s.Data == nil {
		s.Data = datatypes.JSONMap{}
	}
	s.Data[DataWindowStartEpoch] = start.UTC().Unix()
	s.Data[DataWindowEndEpoch] = end.UTC().Unix()
}

// JSON round-trips turn numbers into float64 or json.Number depending on
// the driver, so the data bag is read permissively.
func (s *EnforcementState) dataInt64(key string) (int64, bool) {
	f, ok := s.dataFloat(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (s *EnforcementState) dataFloat(key string) (float64, bool) {
	if s.Data == nil {
		return 0, false
	}
	switch v := s.Data[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// EnforcementEvent is the append-only trail of lifecycle transitions.
type EnforcementEvent struct {
	ID        string            `gorm:"primaryKey;type:text"`
	OwnerType string            `gorm:"type:text;not null;index:idx_enforcement_events_owner"`
	OwnerID   string            `gorm:"type:text;not null;index:idx_enforcement_events_owner"`
	LimitKey  string            `gorm:"type:text;not null"`
	EventType string            `gorm:"type:text;not null"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EnforcementEvent) TableName() string { return "enforcement_events" }
