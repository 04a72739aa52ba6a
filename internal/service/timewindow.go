package service

import (
	"time"

	"github.com/siemhub/orchestrator/internal/domain"
)

// ResolveWindow turns a task's time selection into a concrete [from, to)
// window. now is the dispatch time of the run, so retries of the same run
// resolve to the same bounds. Absolute bounds take precedence over relative
// descriptors; with no selection at all the window is unbounded.
func ResolveWindow(sel domain.TimeSelection, now time.Time) (domain.TimeWindow, error) {
	if err := sel.Validate(); err != nil {
		return domain.TimeWindow{}, err
	}

	if sel.FromTime != nil || sel.ToTime != nil {
		to := sel.ToTime
		if sel.FromTime != nil && to == nil {
			to = &now
		}
		return domain.TimeWindow{From: sel.FromTime, To: to}, nil
	}

	value, unit := sel.RelativeValue, sel.RelativeUnit
	if sel.Preset != "" {
		var err error
		value, unit, err = domain.ParsePreset(sel.Preset)
		if err != nil {
			return domain.TimeWindow{}, err
		}
	}
	if value == 0 {
		return domain.TimeWindow{}, nil
	}

	unitDur, err := domain.UnitDuration(unit)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	from := now.Add(-time.Duration(value) * unitDur)
	return domain.TimeWindow{From: &from, To: &now}, nil
}
