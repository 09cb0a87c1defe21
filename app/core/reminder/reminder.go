// Package reminder turns a draft's parsed tasks into deferred Slack
// messages. Each task's reminder is handed to the messaging provider
// independently; one failure never stops the remaining tasks.
package reminder

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"minutesbot/app/core/minutes"
	"minutesbot/app/pkg/logger"
)

// Messenger is the deferred-send capability of the chat transport.
type Messenger interface {
	ScheduleMessage(ctx context.Context, channel, threadTS, text string, postAt int64) error
}

// Policy maps a task's due time to zero or more reminder fire times. Fire
// times at or before now are dropped by the caller.
type Policy func(due time.Time, now time.Time) []time.Time

// DefaultPolicy reminds the day before at the given hour and again one hour
// before the deadline.
func DefaultPolicy(hour int) Policy {
	return func(due time.Time, _ time.Time) []time.Time {
		dayBefore := time.Date(due.Year(), due.Month(), due.Day(), hour, 0, 0, 0, due.Location()).AddDate(0, 0, -1)
		return []time.Time{dayBefore, due.Add(-time.Hour)}
	}
}

// FixedDelayPolicy schedules a single reminder a fixed delay from now,
// regardless of the due time. Useful for short-loop verification.
func FixedDelayPolicy(delay time.Duration) Policy {
	return func(_ time.Time, now time.Time) []time.Time {
		return []time.Time{now.Add(delay)}
	}
}

type Scheduler struct {
	messenger   Messenger
	userMap     map[string]string
	defaultHour int
	policy      Policy
	loc         *time.Location
	now         func() time.Time
}

type Option func(*Scheduler)

func WithPolicy(p Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(messenger Messenger, userMap map[string]string, defaultHour int, opts ...Option) *Scheduler {
	s := &Scheduler{
		messenger:   messenger,
		userMap:     userMap,
		defaultHour: defaultHour,
		loc:         time.Local,
		now:         time.Now,
	}
	s.policy = DefaultPolicy(defaultHour)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule derives tasks from the draft's current actions text and hands one
// deferred message per future fire time to the messenger. Tasks without a
// parsable due date are skipped silently.
func (s *Scheduler) Schedule(ctx context.Context, channel, threadTS string, d minutes.Draft) {
	tasks := minutes.ParseTasks(d.Actions)
	if len(tasks) == 0 {
		return
	}

	now := s.now().In(s.loc)
	for _, t := range tasks {
		due, ok := ParseDue(t.Due, now, s.defaultHour, s.loc)
		if !ok {
			continue
		}

		text := s.reminderText(t)
		for _, fireAt := range s.policy(due, now) {
			if !fireAt.After(now) {
				continue
			}
			if err := s.messenger.ScheduleMessage(ctx, channel, threadTS, text, fireAt.Unix()); err != nil {
				logger.Error("reminder schedule failed for task %q: %v", t.Title, err)
			}
		}
	}
}

func (s *Scheduler) reminderText(t minutes.Task) string {
	mention := ""
	if uid := s.resolveUserID(t.Assignee); uid != "" {
		mention = fmt.Sprintf("<@%s> ", uid)
	}
	assignee := t.Assignee
	if assignee == "" {
		assignee = "未定"
	}
	due := t.Due
	if due == "" {
		due = "未定"
	}
	return fmt.Sprintf("%sリマインド：*%s* （担当: %s / 期限: %s）", mention, t.Title, assignee, due)
}

var roleSuffixPattern = regexp.MustCompile(`[（(].*?[）)]`)

// resolveUserID maps an assignee display name like "田中(PM)" to a platform
// user id via the configured map. Unknown names resolve to empty, which
// degrades the mention to plain text.
func (s *Scheduler) resolveUserID(name string) string {
	if name == "" {
		return ""
	}
	base := strings.TrimSpace(roleSuffixPattern.ReplaceAllString(name, ""))
	return s.userMap[base]
}

var dueLayouts = []string{
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
	"1/2",
}

// ParseDue interprets the small set of human date formats the summarizer and
// editors produce. Date-only forms get defaultHour; the month/day form gets
// the current year. Anything else is "no reminder", not an error.
func ParseDue(s string, now time.Time, defaultHour int, loc *time.Location) (time.Time, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		dt, err := time.ParseInLocation(layout, trimmed, loc)
		if err != nil {
			continue
		}
		if layout == "1/2" {
			dt = time.Date(now.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, loc)
		}
		if layout != "2006-01-02 15:04" && layout != "2006/01/02 15:04" {
			dt = time.Date(dt.Year(), dt.Month(), dt.Day(), defaultHour, 0, 0, 0, loc)
		}
		return dt, true
	}
	return time.Time{}, false
}
