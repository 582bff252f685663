// Package domain holds movebot's core records: routines with their
// triggers, exercises, the activity log and user preferences.
package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Exercise struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Routine owns its triggers: a trigger's lifetime ends with the routine or
// with explicit removal from the slice.
type Routine struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Active    bool        `json:"active"`
	Triggers  []Trigger   `json:"triggers"`
	Exercises []uuid.UUID `json:"exercises,omitempty"`
}

type TriggerType string

const (
	TriggerTimeRecurring     TriggerType = "time_recurring"
	TriggerInactivityMinutes TriggerType = "inactivity_minutes"
	TriggerHealthNoStandHour TriggerType = "health_no_stand_hour"
	// Reserved for future sensors; recognized but never evaluated.
	TriggerDeviceIdle     TriggerType = "device_idle"
	TriggerHomeAutomation TriggerType = "home_automation"
)

// Trigger is a configured condition attached to a routine. Params is the
// stored representation (string keyed, schema per type); Rule() decodes it
// into a typed rule. A trigger whose params don't satisfy its type is
// inert: evaluators skip it without error.
type Trigger struct {
	ID         uuid.UUID         `json:"id"`
	Type       TriggerType       `json:"type"`
	Params     map[string]string `json:"params,omitempty"`
	ExerciseID *uuid.UUID        `json:"exercise_id,omitempty"`
}

// Rule is the decoded form of a trigger's params.
type Rule interface{ isRule() }

// TimeRecurringRule fires daily at Hour:Minute.
type TimeRecurringRule struct {
	Hour   int
	Minute int
}

// InactivityRule fires when the app hasn't been opened for longer than
// Threshold.
type InactivityRule struct {
	Threshold time.Duration
}

// StandHourRule fires when cumulative stand time over the trailing Window
// is under one hour.
type StandHourRule struct {
	Window time.Duration
}

// ReservedRule marks extension-point trigger types with no evaluation
// logic yet.
type ReservedRule struct{}

func (TimeRecurringRule) isRule() {}
func (InactivityRule) isRule()    {}
func (StandHourRule) isRule()     {}
func (ReservedRule) isRule()      {}

// Rule decodes Params according to Type. ok=false means the trigger is
// inert (unknown type, missing or unparseable params) and must be skipped
// silently.
func (t Trigger) Rule() (Rule, bool) {
	switch t.Type {
	case TriggerTimeRecurring:
		h, okH := paramInt(t.Params, "hour")
		m, okM := paramInt(t.Params, "minute")
		if !okH || !okM || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, false
		}
		return TimeRecurringRule{Hour: h, Minute: m}, true
	case TriggerInactivityMinutes:
		mins, ok := paramInt(t.Params, "minutes")
		if !ok || mins <= 0 {
			return nil, false
		}
		return InactivityRule{Threshold: time.Duration(mins) * time.Minute}, true
	case TriggerHealthNoStandHour:
		hours, ok := paramInt(t.Params, "thresholdHours")
		if !ok || hours <= 0 {
			return nil, false
		}
		return StandHourRule{Window: time.Duration(hours) * time.Hour}, true
	case TriggerDeviceIdle, TriggerHomeAutomation:
		return ReservedRule{}, true
	default:
		return nil, false
	}
}

func paramInt(params map[string]string, key string) (int, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
