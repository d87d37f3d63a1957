package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind discriminates the rule variants.
type Kind string

const (
	KindEveryNMinutes Kind = "every_n_minutes"
	KindHourly        Kind = "hourly"
	KindDaily         Kind = "daily"
	KindWeekly        Kind = "weekly"
)

// allowedN are the supported every-N-minutes intervals. They line up with
// minute boundaries, so */N in cron produces :00, :05, :10, ...
var allowedN = map[int]bool{1: true, 5: true, 15: true, 30: true}

// Rule describes when a job recurs. Unused fields stay zero.
//
//	{"kind":"every_n_minutes","n":5}
//	{"kind":"hourly","minute":30}
//	{"kind":"daily","hour":4,"minute":0}
//	{"kind":"weekly","weekday":1,"hour":4,"minute":0}
type Rule struct {
	Kind    Kind         `json:"kind"`
	N       int          `json:"n,omitempty"`
	Minute  int          `json:"minute,omitempty"`
	Hour    int          `json:"hour,omitempty"`
	Weekday time.Weekday `json:"weekday,omitempty"` // Sunday=0, cron convention
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (r Rule) Validate() error {
	switch r.Kind {
	case KindEveryNMinutes:
		if !allowedN[r.N] {
			return fmt.Errorf("schedule: every_n_minutes supports n in {1,5,15,30}, got %d", r.N)
		}
	case KindHourly:
		if r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("schedule: minute %d out of range", r.Minute)
		}
	case KindDaily:
		if r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("schedule: minute %d out of range", r.Minute)
		}
		if r.Hour < 0 || r.Hour > 23 {
			return fmt.Errorf("schedule: hour %d out of range", r.Hour)
		}
	case KindWeekly:
		if r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("schedule: minute %d out of range", r.Minute)
		}
		if r.Hour < 0 || r.Hour > 23 {
			return fmt.Errorf("schedule: hour %d out of range", r.Hour)
		}
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("schedule: weekday %d out of range", r.Weekday)
		}
	default:
		return fmt.Errorf("schedule: unknown rule kind %q", r.Kind)
	}
	return nil
}

// Spec renders the 5-field cron expression for the rule.
func (r Rule) Spec() string {
	switch r.Kind {
	case KindEveryNMinutes:
		if r.N <= 1 {
			return "* * * * *"
		}
		return fmt.Sprintf("*/%d * * * *", r.N)
	case KindHourly:
		return fmt.Sprintf("%d * * * *", r.Minute)
	case KindDaily:
		return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
	case KindWeekly:
		return fmt.Sprintf("%d %d * * %d", r.Minute, r.Hour, int(r.Weekday))
	}
	return ""
}

// Next returns the smallest occurrence strictly after the given time.
// Invalid rules return the zero time; validate before scheduling.
func (r Rule) Next(after time.Time) time.Time {
	sched, err := specParser.Parse(r.Spec())
	if err != nil {
		return time.Time{}
	}
	return sched.Next(after)
}

// Due reports whether at least one occurrence boundary has been crossed in
// (since, now], where since is lastRun when known and baseline (typically
// process start) otherwise. One poll fires at most once no matter how many
// occurrences were missed.
func Due(r Rule, lastRun *time.Time, baseline, now time.Time) bool {
	since := baseline
	if lastRun != nil {
		since = *lastRun
	}
	next := r.Next(since)
	if next.IsZero() {
		return false
	}
	return !next.After(now)
}

// String renders a short human description, e.g. "every 5 minutes" or
// "weekly on Monday at 04:00".
func (r Rule) String() string {
	switch r.Kind {
	case KindEveryNMinutes:
		if r.N <= 1 {
			return "every minute"
		}
		return fmt.Sprintf("every %d minutes", r.N)
	case KindHourly:
		return fmt.Sprintf("hourly at :%02d", r.Minute)
	case KindDaily:
		return fmt.Sprintf("daily at %02d:%02d", r.Hour, r.Minute)
	case KindWeekly:
		return fmt.Sprintf("weekly on %s at %02d:%02d", r.Weekday, r.Hour, r.Minute)
	}
	return "invalid rule"
}
