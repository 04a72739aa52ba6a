package domain

import (
	"regexp"
	"time"
)

// Relative time units accepted by presets and custom descriptors.
const (
	UnitMinute = "m"
	UnitHour   = "h"
	UnitDay    = "d"
)

var presetPattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// TimeSelection is a task's time-selection block: either an absolute
// {from, to} pair or a relative descriptor (a preset token like "1h"/"7d", or
// an explicit {value, unit}). At most one branch is authoritative; absolute
// wins when both are present.
type TimeSelection struct {
	FromTime      *time.Time `gorm:"column:from_time" json:"from,omitempty"`
	ToTime        *time.Time `gorm:"column:to_time" json:"to,omitempty"`
	Preset        string     `gorm:"column:preset" json:"preset,omitempty"`
	RelativeValue int        `gorm:"column:relative_value" json:"relative_value,omitempty"`
	RelativeUnit  string     `gorm:"column:relative_unit" json:"relative_unit,omitempty"`
}

// IsZero reports whether no time selection is configured at all.
func (s TimeSelection) IsZero() bool {
	return s.FromTime == nil && s.ToTime == nil && s.Preset == "" &&
		s.RelativeValue == 0 && s.RelativeUnit == ""
}

// Validate checks the selection at task-save time. An inverted absolute pair,
// a non-positive relative value, a malformed preset, or an unknown unit token
// is a ValidationError.
func (s TimeSelection) Validate() error {
	if s.FromTime != nil && s.ToTime != nil && !s.ToTime.After(*s.FromTime) {
		return Validationf("absolute window: 'to' (%s) must be after 'from' (%s)",
			s.ToTime.Format(time.RFC3339), s.FromTime.Format(time.RFC3339))
	}
	if s.Preset != "" {
		if _, _, err := ParsePreset(s.Preset); err != nil {
			return err
		}
	}
	if s.RelativeValue != 0 || s.RelativeUnit != "" {
		if s.RelativeValue <= 0 {
			return Validationf("relative window: value must be positive, got %d", s.RelativeValue)
		}
		if _, err := UnitDuration(s.RelativeUnit); err != nil {
			return err
		}
	}
	return nil
}

// ParsePreset parses a preset token of the form <integer><unit> with unit in
// {m, h, d}, e.g. "1h", "6h", "24h", "7d".
func ParsePreset(preset string) (int, string, error) {
	m := presetPattern.FindStringSubmatch(preset)
	if m == nil {
		return 0, "", Validationf("invalid time preset %q (expected <integer><m|h|d>)", preset)
	}
	value := 0
	for _, c := range m[1] {
		value = value*10 + int(c-'0')
	}
	if value <= 0 {
		return 0, "", Validationf("invalid time preset %q: value must be positive", preset)
	}
	return value, m[2], nil
}

// UnitDuration returns the duration of one relative-window unit.
func UnitDuration(unit string) (time.Duration, error) {
	switch unit {
	case UnitMinute:
		return time.Minute, nil
	case UnitHour:
		return time.Hour, nil
	case UnitDay:
		return 24 * time.Hour, nil
	}
	return 0, Validationf("unknown time unit %q (expected m, h or d)", unit)
}

// TimeWindow is a resolved [from, to) bound. Both bounds nil means unbounded:
// the executor must not constrain by time.
type TimeWindow struct {
	From *time.Time
	To   *time.Time
}

// Unbounded reports whether the window carries no time constraint.
func (w TimeWindow) Unbounded() bool {
	return w.From == nil && w.To == nil
}
