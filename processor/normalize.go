package processor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gridflow/models"
)

// Canonical columns added by Normalize. Every source table ends up with the
// same pair regardless of how the source labels its hours.
const (
	ColHourEnding = "hour_ending"
	ColDatetime   = "datetime"
)

var dateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
}

// Normalize reduces a source's date and hour-ending representation to the
// canonical pair: an integer hour_ending 1-24 and a datetime of the
// delivery date at (hour_ending-1):00. Hour-ending 24 maps to 23:00 on the
// same calendar date; the sources all share that convention and it must
// not be corrected to a midnight rollover. A value that does not parse
// aborts the run, since it likely signals an upstream schema change.
func Normalize(tbl *models.Table, dateCol, hourCol string) error {
	if !tbl.HasCol(dateCol) {
		return fmt.Errorf("date column %q not present: %w", dateCol, models.ErrUnparseableTimestamp)
	}
	if !tbl.HasCol(hourCol) {
		return fmt.Errorf("hour column %q not present: %w", hourCol, models.ErrUnparseableTimestamp)
	}

	for i, row := range tbl.Rows {
		day, err := parseDate(row[dateCol])
		if err != nil {
			return fmt.Errorf("row %d column %q: %v: %w", i, dateCol, err, models.ErrUnparseableTimestamp)
		}
		hour, err := parseHourEnding(row[hourCol])
		if err != nil {
			return fmt.Errorf("row %d column %q: %v: %w", i, hourCol, err, models.ErrUnparseableTimestamp)
		}
		if hour < 1 || hour > 24 {
			return fmt.Errorf("row %d column %q: hour ending %d out of range: %w", i, hourCol, hour, models.ErrUnparseableTimestamp)
		}

		row[ColHourEnding] = hour
		row[ColDatetime] = day.Add(time.Duration(hour-1) * time.Hour)
	}

	tbl.AddCol(ColHourEnding)
	tbl.AddCol(ColDatetime)
	return nil
}

// parseDate accepts a time.Time or any of the date layouts the sources use
// and returns midnight of that calendar date.
func parseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, x.Location()), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	default:
		return time.Time{}, fmt.Errorf("cannot parse %T as date", v)
	}
}

// parseHourEnding accepts a plain integer in any numeric shape or a
// colon-delimited clock string whose leading component is the hour ending.
func parseHourEnding(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case string:
		s := strings.TrimSpace(x)
		if idx := strings.Index(s, ":"); idx >= 0 {
			s = s[:idx]
		}
		h, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("unrecognized hour %q", x)
		}
		return h, nil
	default:
		return 0, fmt.Errorf("cannot parse %T as hour ending", v)
	}
}
