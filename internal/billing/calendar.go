/**
 * @description
 * Pure billing calendar calculations. Everything here is deterministic given
 * its inputs and performs no I/O, so the date rules that decide when a
 * customer is charged and when groceries arrive can be tested exhaustively.
 */

package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/HeartyTjan/bukafresh-store/internal/domain"
)

// NextBillingDate returns the date the next invoice falls due, counted from
// `from`. Unrecognized cycles bill monthly; that is the documented default,
// not an error, so a bad stored value degrades to the safest cadence.
func NextBillingDate(cycle string, from time.Time) time.Time {
	switch strings.ToUpper(cycle) {
	case domain.CycleWeekly:
		return from.AddDate(0, 0, 7)
	case domain.CycleMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// FirstDeliveryDate returns the first delivery date for a newly activated
// subscription: the next occurrence of the anchor weekday on or after today.
// For MONTHLY subscriptions the first delivery must land inside the current
// month; if the anchor weekday has already passed this month, delivery moves
// to the first eligible weekday of the following month. WEEKLY subscriptions
// always take the immediate next-or-same occurrence.
func FirstDeliveryDate(cycle string, anchor time.Weekday, today time.Time) time.Time {
	next := nextOrSame(today, anchor)

	if strings.ToUpper(cycle) == domain.CycleMonthly {
		if next.Month() == today.Month() && next.Year() == today.Year() {
			return next
		}
		firstOfNextMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
		return nextOrSame(firstOfNextMonth, anchor)
	}

	return next
}

// nextOrSame returns the next occurrence of `target` on or after `from`.
func nextOrSame(from time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, days)
}

// ParseWeekday converts a stored anchor weekday such as "SATURDAY" into a
// time.Weekday.
func ParseWeekday(day string) (time.Weekday, error) {
	switch strings.ToUpper(strings.TrimSpace(day)) {
	case "SUNDAY":
		return time.Sunday, nil
	case "MONDAY":
		return time.Monday, nil
	case "TUESDAY":
		return time.Tuesday, nil
	case "WEDNESDAY":
		return time.Wednesday, nil
	case "THURSDAY":
		return time.Thursday, nil
	case "FRIDAY":
		return time.Friday, nil
	case "SATURDAY":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("invalid delivery day: %q", day)
}
