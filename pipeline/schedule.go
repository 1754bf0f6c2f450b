package pipeline

import (
	"strings"

	"github.com/arcline/adsync/errors"
)

// ScheduleType selects how a connection's syncs are launched
type ScheduleType string

const (
	ScheduleManual   ScheduleType = "manual"
	ScheduleInterval ScheduleType = "interval"
	ScheduleCron     ScheduleType = "cron"
)

// Schedule is the local, 5-field-cron representation of a connection
// schedule
type Schedule struct {
	Type            ScheduleType
	IntervalMinutes int
	CronExpression  string // standard 5-field cron
	Timezone        string
}

// ScheduleData is the wire payload the remote API expects
type ScheduleData struct {
	BasicSchedule *BasicSchedule `json:"basic_schedule,omitempty"`
	Cron          *CronSchedule  `json:"cron,omitempty"`
}

// BasicSchedule is a fixed-interval schedule
type BasicSchedule struct {
	Units    int    `json:"units"`
	TimeUnit string `json:"time_unit"`
}

// CronSchedule is a 6-field quartz cron schedule
type CronSchedule struct {
	CronExpression string `json:"cron_expression"`
	CronTimeZone   string `json:"cron_time_zone"`
}

// Payload builds the remote schedule payload. Manual schedules produce a
// nil payload (the remote never launches on its own).
func (s Schedule) Payload() (ScheduleType, *ScheduleData, error) {
	switch s.Type {
	case ScheduleManual, "":
		return ScheduleManual, nil, nil

	case ScheduleInterval:
		if s.IntervalMinutes < 1 {
			return "", nil, errors.Newf("interval schedule requires at least 1 minute, got %d", s.IntervalMinutes)
		}
		return ScheduleInterval, &ScheduleData{
			BasicSchedule: &BasicSchedule{Units: s.IntervalMinutes, TimeUnit: "minutes"},
		}, nil

	case ScheduleCron:
		quartz, err := ToQuartz(s.CronExpression)
		if err != nil {
			return "", nil, err
		}
		tz := s.Timezone
		if tz == "" {
			tz = "UTC"
		}
		return ScheduleCron, &ScheduleData{
			Cron: &CronSchedule{CronExpression: quartz, CronTimeZone: tz},
		}, nil

	default:
		return "", nil, errors.Newf("unknown schedule type %q", s.Type)
	}
}

// ToQuartz translates a standard 5-field cron expression into the 6-field
// quartz form the remote expects: a leading "0" seconds field, and "?"
// substituted for whichever of day-of-month/day-of-week was "*", since
// quartz refuses "*" in both.
func ToQuartz(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "", errors.Newf("cron expression must have 5 fields, got %d in %q", len(fields), expr)
	}

	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case dom == "*" && dow == "*":
		dow = "?"
	case dom == "*" && dow != "*":
		dom = "?"
	case dow == "*":
		dow = "?"
	}

	return strings.Join([]string{"0", minute, hour, dom, month, dow}, " "), nil
}

// FromQuartz translates a 6-field quartz expression back to standard
// 5-field cron, used when reading remote connections back.
func FromQuartz(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return "", errors.Newf("quartz expression must have 6 fields, got %d in %q", len(fields), expr)
	}

	minute, hour, dom, month, dow := fields[1], fields[2], fields[3], fields[4], fields[5]
	if dom == "?" {
		dom = "*"
	}
	if dow == "?" {
		dow = "*"
	}

	return strings.Join([]string{minute, hour, dom, month, dow}, " "), nil
}

// ScheduleFromRemote rebuilds the local schedule representation from a
// remote connection
func ScheduleFromRemote(conn *Connection) (Schedule, error) {
	switch {
	case conn.ScheduleData == nil:
		return Schedule{Type: ScheduleManual}, nil

	case conn.ScheduleData.BasicSchedule != nil:
		return Schedule{
			Type:            ScheduleInterval,
			IntervalMinutes: conn.ScheduleData.BasicSchedule.Units,
		}, nil

	case conn.ScheduleData.Cron != nil:
		expr, err := FromQuartz(conn.ScheduleData.Cron.CronExpression)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{
			Type:           ScheduleCron,
			CronExpression: expr,
			Timezone:       conn.ScheduleData.Cron.CronTimeZone,
		}, nil

	default:
		return Schedule{Type: ScheduleManual}, nil
	}
}
