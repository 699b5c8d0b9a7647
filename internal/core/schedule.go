package core

import (
	"fmt"
	"time"
)

// Occurrences expands a recurring rule into the dates it fires within
// [windowStart, windowEnd], inclusive on both ends. It is a pure function of
// its inputs: same rule, same window, same dates.
//
// Month-based frequencies step by whole months from the rule's start and
// clamp the target day to the month's last day, so a rule on the 31st fires
// on Feb 28 (or 29) instead of spilling into March. Weekly and biweekly
// rules are anchored to StartDate's weekday. A rule with no occurrences in
// the window yields an empty slice, not an error.
func Occurrences(rule RecurringRule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if rule.Interval < 1 {
		return nil, ErrInvalidInterval
	}

	end := windowEnd
	if !rule.EndDate.IsZero() && rule.EndDate.Before(end) {
		end = rule.EndDate
	}
	start := rule.StartDate
	if end.Before(start) {
		return []time.Time{}, nil
	}

	switch rule.Frequency {
	case Daily:
		return stepDays(start, windowStart, end, rule.Interval), nil
	case Weekly:
		return stepDays(start, windowStart, end, 7*rule.Interval), nil
	case Biweekly:
		return stepDays(start, windowStart, end, 14*rule.Interval), nil
	case Monthly:
		return stepMonths(rule, windowStart, end, rule.Interval), nil
	case Quarterly:
		return stepMonths(rule, windowStart, end, 3*rule.Interval), nil
	case Yearly:
		return stepMonths(rule, windowStart, end, 12*rule.Interval), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, rule.Frequency)
	}
}

func stepDays(anchor, windowStart, end time.Time, stepDays int) []time.Time {
	anchor = dateOnly(anchor)
	windowStart = dateOnly(windowStart)
	end = dateOnly(end)

	cur := anchor
	// Skip whole steps before the window instead of iterating day by day
	// from a possibly ancient start date.
	if cur.Before(windowStart) {
		gapDays := int(windowStart.Sub(cur).Hours() / 24)
		cur = cur.AddDate(0, 0, (gapDays/stepDays)*stepDays)
		for cur.Before(windowStart) {
			cur = cur.AddDate(0, 0, stepDays)
		}
	}

	var out []time.Time
	for !cur.After(end) {
		out = append(out, cur)
		cur = cur.AddDate(0, 0, stepDays)
	}
	if out == nil {
		out = []time.Time{}
	}
	return out
}

func stepMonths(rule RecurringRule, windowStart, end time.Time, stepMonths int) []time.Time {
	targetDay := rule.DayOfMonth
	if targetDay == 0 {
		targetDay = rule.StartDate.Day()
	}
	windowStart = dateOnly(windowStart)
	end = dateOnly(end)

	var out []time.Time
	base := Month{Year: rule.StartDate.Year(), M: rule.StartDate.Month()}
	for i := 0; ; i += stepMonths {
		m := addMonths(base, i)
		occ := clampToMonth(m, targetDay)
		if occ.After(end) {
			break
		}
		if !occ.Before(windowStart) && !occ.Before(dateOnly(rule.StartDate)) {
			out = append(out, occ)
		}
	}
	if out == nil {
		out = []time.Time{}
	}
	return out
}

func addMonths(m Month, n int) Month {
	t := m.Start().AddDate(0, n, 0)
	return Month{Year: t.Year(), M: t.Month()}
}

// clampToMonth returns the given day in the month, pulled back to the last
// day when the month is shorter.
func clampToMonth(m Month, day int) time.Time {
	if last := m.Days(); day > last {
		day = last
	}
	return time.Date(m.Year, m.M, day, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
