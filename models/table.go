package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is a single record of a report table keyed by column name. Values
// keep their source-native type (string, float64, int, time.Time) until a
// processor needs them as something specific.
type Row map[string]any

// Table is an in-memory tabular dataset as retrieved from one source.
// Cols preserves the source column order for artifact output; Rows hold
// the data. A Table is owned by the pipeline run that fetched it and is
// discarded at run end.
type Table struct {
	Cols []string
	Rows []Row
}

// NewTable creates an empty table with the given column order.
func NewTable(cols ...string) *Table {
	return &Table{Cols: append([]string(nil), cols...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// HasCol reports whether the named column is declared.
func (t *Table) HasCol(name string) bool {
	for _, c := range t.Cols {
		if c == name {
			return true
		}
	}
	return false
}

// AddCol declares a column if it is not already present.
func (t *Table) AddCol(name string) {
	if !t.HasCol(name) {
		t.Cols = append(t.Cols, name)
	}
}

// Append adds a row. Columns not yet declared are appended in first-seen
// order so tables built from object-shaped API rows keep a stable schema.
func (t *Table) Append(r Row) {
	for k := range r {
		if !t.HasCol(k) {
			t.Cols = append(t.Cols, k)
		}
	}
	t.Rows = append(t.Rows, r)
}

// Copy returns a table with copied column order and shallow-copied rows,
// so renames and joins never mutate the source table.
func (t *Table) Copy() *Table {
	out := NewTable(t.Cols...)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Select returns a new table holding only the named columns, in the given
// order. Every requested column must exist.
func (t *Table) Select(cols ...string) (*Table, error) {
	for _, c := range cols {
		if !t.HasCol(c) {
			return nil, fmt.Errorf("select: column %q not present", c)
		}
	}
	out := NewTable(cols...)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make(Row, len(cols))
		for _, c := range cols {
			nr[c] = r[c]
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// RenameCols renames columns in place. Every source name must exist and no
// target name may collide with an existing column; a miss on either side
// usually means the upstream schema changed, so it fails loudly.
func (t *Table) RenameCols(renames map[string]string) error {
	for from, to := range renames {
		if !t.HasCol(from) {
			return fmt.Errorf("rename %q -> %q: source column not present", from, to)
		}
		if t.HasCol(to) {
			return fmt.Errorf("rename %q -> %q: target column already exists", from, to)
		}
	}
	for from, to := range renames {
		for i, c := range t.Cols {
			if c == from {
				t.Cols[i] = to
			}
		}
		for _, r := range t.Rows {
			if v, ok := r[from]; ok {
				r[to] = v
				delete(r, from)
			}
		}
	}
	return nil
}

// Float reads a column as float64, accepting the numeric shapes a CSV or
// JSON source can produce.
func (r Row) Float(col string) (float64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q not present", col)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(x, ",", "")), 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", col, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("column %q: cannot convert %T to float", col, v)
	}
}

// Int reads a column as int.
func (r Row) Int(col string) (int, error) {
	f, err := r.Float(col)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// String reads a column as its string form.
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok {
		return "", fmt.Errorf("column %q not present", col)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}

// Time reads a column that already holds a time.Time.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok {
		return time.Time{}, fmt.Errorf("column %q not present", col)
	}
	ts, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("column %q: %T is not a time", col, v)
	}
	return ts, nil
}
