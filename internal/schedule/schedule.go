// Package schedule evaluates 5-field crontab expressions against instants
// and generates spread-out schedules for scan targets. The crontab grammar
// itself is handled by robfig/cron.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule wraps parse failures from the cron grammar.
var ErrInvalidSchedule = errors.New("invalid schedule expression")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a 5-field schedule expression. On top of robfig's
// grammar it accepts full weekday names ("monday") and wrap-around
// numeric ranges ("55-5"), normalizing both before handing off.
func Parse(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidSchedule)
	}
	sched, err := parser.Parse(normalize(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return sched, nil
}

var weekdayNames = strings.NewReplacer(
	"sunday", "sun", "monday", "mon", "tuesday", "tue", "wednesday", "wed",
	"thursday", "thu", "friday", "fri", "saturday", "sat",
)

// fieldBounds holds the value range of each of the five crontab fields.
var fieldBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

// normalize rewrites grammar extensions robfig does not accept. Weekday
// names are shortened to their three-letter forms, and a numeric range
// whose start exceeds its end ("55-5") is split into the two plain ranges
// it wraps around. Anything unrecognized is passed through untouched so
// robfig still reports the error.
func normalize(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	fields[4] = weekdayNames.Replace(strings.ToLower(fields[4]))
	for i, field := range fields {
		fields[i] = expandWrapRanges(field, fieldBounds[i][0], fieldBounds[i][1])
	}
	return strings.Join(fields, " ")
}

func expandWrapRanges(field string, min, max int) string {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		dash := strings.IndexByte(part, '-')
		if dash <= 0 || strings.ContainsAny(part, "/*") {
			continue
		}
		lo, err1 := strconv.Atoi(part[:dash])
		hi, err2 := strconv.Atoi(part[dash+1:])
		if err1 != nil || err2 != nil || lo <= hi {
			continue
		}
		parts[i] = fmt.Sprintf("%d-%d,%d-%d", lo, max, min, hi)
	}
	return strings.Join(parts, ",")
}

// IsActiveNow reports whether the schedule fires at the given instant,
// compared at minute resolution.
func IsActiveNow(expr string, instant time.Time) (bool, error) {
	sched, err := Parse(expr)
	if err != nil {
		return false, err
	}
	minute := instant.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute), nil
}

// Enumerate returns every firing instant in (from, to], in order.
func Enumerate(expr string, from, to time.Time) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for next := sched.Next(from); !next.IsZero() && !next.After(to); next = sched.Next(next) {
		out = append(out, next)
	}
	return out, nil
}

// ──────────────────── Generators ────────────────────

// Generated schedules pin the minute to a multiple of 10 so firings land on
// the archiver's tick boundary.
func roundMinute(t time.Time) int {
	return (t.Minute() / 10) * 10
}

// Daily returns a schedule firing once a day at the seed's time.
func Daily(seed time.Time) string {
	return fmt.Sprintf("%d %d * * *", roundMinute(seed), seed.Hour())
}

// EveryOtherDay returns a schedule firing on odd days of the month.
func EveryOtherDay(seed time.Time) string {
	return fmt.Sprintf("%d %d 1-31/2 * *", roundMinute(seed), seed.Hour())
}

// Weekly returns a schedule firing once a week on the seed's weekday.
func Weekly(seed time.Time) string {
	return fmt.Sprintf("%d %d * * %d", roundMinute(seed), seed.Hour(), int(seed.Weekday()))
}

// Monthly returns a schedule firing once a month on the seed's day.
func Monthly(seed time.Time) string {
	return fmt.Sprintf("%d %d %d * *", roundMinute(seed), seed.Hour(), seed.Day())
}

// Biyearly returns a schedule firing twice a year, six months apart.
func Biyearly(seed time.Time) string {
	first := int(seed.Month())
	second := first + 6
	if second > 12 {
		second -= 12
	}
	if second < first {
		first, second = second, first
	}
	return fmt.Sprintf("%d %d %d %d,%d *", roundMinute(seed), seed.Hour(), seed.Day(), first, second)
}

// Yearly returns a schedule firing once a year at the seed's date.
func Yearly(seed time.Time) string {
	return fmt.Sprintf("%d %d %d %d *", roundMinute(seed), seed.Hour(), seed.Day(), int(seed.Month()))
}

// Generator builds one schedule expression from a seed instant.
type Generator func(seed time.Time) string

// GenerateSelectionSet produces length schedules from the generator, spacing
// successive seeds 10 minutes apart so no two targets share a firing minute.
func GenerateSelectionSet(gen Generator, seed time.Time, length int) []string {
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		out = append(out, gen(seed.Add(time.Duration(i)*10*time.Minute)))
	}
	return out
}
