package stores

import (
	"time"

	"github.com/avrkr/asteriskace"
	"github.com/oarkflow/date"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func scanTime(raw interface{}) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func sqlNullIntOrNil(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func cloneRule(r *asteriskace.AccessRule) *asteriskace.AccessRule {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Date.Year != nil {
		y := *r.Date.Year
		dup.Date.Year = &y
	}
	if r.Date.Month != nil {
		m := *r.Date.Month
		dup.Date.Month = &m
	}
	if r.Date.Day != nil {
		d := *r.Date.Day
		dup.Date.Day = &d
	}
	return &dup
}

func logQueryLimit(f asteriskace.LogFilter) int {
	if f.Limit > 0 {
		return f.Limit
	}
	return asteriskace.DefaultLogQueryLimit
}

func matchesLogFilter(e *asteriskace.LogEntry, f asteriskace.LogFilter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
