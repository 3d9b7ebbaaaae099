// Package recurrence decides when a recurring template produces an
// instance and what window and deadline that instance gets.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type Rule struct {
	Kind      model.Recurrence
	Day       int            // weekly: 0-6 Sunday first; monthly: 1-31
	Days      []time.Weekday // custom_days
	PublishAt *Clock         // optional wall-clock publish time
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// FromTask builds the rule of a template task.
func FromTask(t *model.Task) (Rule, error) {
	r := Rule{Kind: t.Recurrence}
	switch t.Recurrence {
	case model.RecurDaily, model.RecurMinutely:
	case model.RecurWeekly:
		if t.RecurrenceDay == nil || *t.RecurrenceDay < 0 || *t.RecurrenceDay > 6 {
			return Rule{}, fmt.Errorf("weekly recurrence needs a day 0-6")
		}
		r.Day = *t.RecurrenceDay
	case model.RecurMonthly:
		if t.RecurrenceDay == nil || *t.RecurrenceDay < 1 || *t.RecurrenceDay > 31 {
			return Rule{}, fmt.Errorf("monthly recurrence needs a day 1-31")
		}
		r.Day = *t.RecurrenceDay
	case model.RecurCustomDays:
		if len(t.RecurrenceDays) == 0 {
			return Rule{}, fmt.Errorf("custom_days recurrence needs at least one weekday")
		}
		for _, d := range t.RecurrenceDays {
			if d < 0 || d > 6 {
				return Rule{}, fmt.Errorf("invalid weekday %d", d)
			}
			r.Days = append(r.Days, time.Weekday(d))
		}
	default:
		return Rule{}, fmt.Errorf("unknown recurrence %q", t.Recurrence)
	}
	if t.AutoPublishTime != "" {
		c, err := ParseClock(t.AutoPublishTime)
		if err != nil {
			return Rule{}, err
		}
		r.PublishAt = &c
	}
	return r, nil
}

// Matches reports whether the rule fires on now's calendar day. Daily and
// minutely rules always match. A monthly day past the end of a short month
// fires on its last day.
func (r Rule) Matches(now time.Time) bool {
	switch r.Kind {
	case model.RecurDaily, model.RecurMinutely:
		return true
	case model.RecurWeekly:
		return int(now.Weekday()) == r.Day
	case model.RecurMonthly:
		return now.Day() == min(r.Day, daysIn(now))
	case model.RecurCustomDays:
		for _, d := range r.Days {
			if now.Weekday() == d {
				return true
			}
		}
	}
	return false
}

// ShouldCreate reports whether an instance is due at now, honouring the
// publish time when one is set.
func (r Rule) ShouldCreate(now time.Time) bool {
	if !r.Matches(now) {
		return false
	}
	if r.PublishAt != nil && now.Before(r.PublishAt.On(now)) {
		return false
	}
	return true
}

// Window returns the start of the de-duplication window containing now and
// a key naming it: the minute for minutely rules, the calendar day otherwise.
func (r Rule) Window(now time.Time) (time.Time, string) {
	if r.Kind == model.RecurMinutely {
		start := now.Truncate(time.Minute)
		return start, start.Format("2006-01-02T15:04")
	}
	start := StartOfDay(now)
	return start, start.Format("2006-01-02")
}

// Deadline returns the instance deadline: one minute out for minutely
// rules, the publish time on the following day when one is set, and the end
// of the current day otherwise.
func (r Rule) Deadline(now time.Time) time.Time {
	switch {
	case r.Kind == model.RecurMinutely:
		return now.Add(time.Minute)
	case r.PublishAt != nil:
		return r.PublishAt.On(StartOfDay(now).AddDate(0, 0, 1))
	default:
		return EndOfDay(now)
	}
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
