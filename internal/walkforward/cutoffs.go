package walkforward

import (
	"sort"
	"time"
)

// CutoffsFromOffsets turns "months before end" into ascending, de-duplicated cutoff dates.
// Non-positive offsets are ignored.
func CutoffsFromOffsets(end time.Time, monthsAgo []int) []time.Time {
	seen := make(map[time.Time]bool, len(monthsAgo))
	out := make([]time.Time, 0, len(monthsAgo))
	for _, m := range monthsAgo {
		if m <= 0 {
			continue
		}
		d := end.AddDate(0, -m, 0)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// RollingCutoffs steps through a trading calendar: the first cutoff leaves `train` days of
// history behind it, then every `step` days, while a full holding window still fits after it.
func RollingCutoffs(calendar []time.Time, train, holding, step int) []time.Time {
	if train < 1 || holding < 1 || step < 1 {
		return nil
	}
	var out []time.Time
	for i := train - 1; i+holding < len(calendar); i += step {
		out = append(out, calendar[i])
	}
	return out
}
