package processor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gridflow/models"
)

// JoinStep describes one pairwise inner join. Rename is the caller's
// explicit disambiguation map, applied to the right table before joining;
// relying on positional suffixes to tell same-named measurements apart is
// exactly the failure mode this replaces.
type JoinStep struct {
	Right     *models.Table
	LeftKeys  []string
	RightKeys []string
	Rename    map[string]string
}

// Join folds the steps left-to-right as inner joins on explicit key lists.
// The right side's key columns are dropped from the result; any other
// column collision that the rename map did not resolve fails fast with
// ErrAmbiguousColumn. A step producing zero rows fails with
// ErrNoMatchingRows, since a metric needing five sources cannot be
// computed with four.
func Join(left *models.Table, steps ...JoinStep) (*models.Table, error) {
	result := left
	for i, step := range steps {
		joined, err := joinPair(result, step)
		if err != nil {
			return nil, fmt.Errorf("join step %d: %w", i, err)
		}
		result = joined
	}
	return result, nil
}

func joinPair(left *models.Table, step JoinStep) (*models.Table, error) {
	if len(step.LeftKeys) == 0 || len(step.LeftKeys) != len(step.RightKeys) {
		return nil, fmt.Errorf("key lists must be non-empty and of equal length")
	}

	right := step.Right.Copy()
	if len(step.Rename) > 0 {
		if err := right.RenameCols(step.Rename); err != nil {
			return nil, err
		}
	}

	for _, k := range step.LeftKeys {
		if !left.HasCol(k) {
			return nil, fmt.Errorf("left key column %q not present", k)
		}
	}
	rightKeySet := make(map[string]bool, len(step.RightKeys))
	for _, k := range step.RightKeys {
		if !right.HasCol(k) {
			return nil, fmt.Errorf("right key column %q not present", k)
		}
		rightKeySet[k] = true
	}

	// Non-key collisions must have been renamed away by the caller.
	carried := make([]string, 0, len(right.Cols))
	for _, c := range right.Cols {
		if rightKeySet[c] {
			continue
		}
		if left.HasCol(c) {
			return nil, fmt.Errorf("column %q present on both sides: %w", c, models.ErrAmbiguousColumn)
		}
		carried = append(carried, c)
	}

	index := make(map[string][]models.Row, right.Len())
	for _, row := range right.Rows {
		k := joinKey(row, step.RightKeys)
		index[k] = append(index[k], row)
	}

	out := models.NewTable(append(append([]string{}, left.Cols...), carried...)...)
	for _, lrow := range left.Rows {
		matches := index[joinKey(lrow, step.LeftKeys)]
		for _, rrow := range matches {
			merged := make(models.Row, len(lrow)+len(carried))
			for k, v := range lrow {
				merged[k] = v
			}
			for _, c := range carried {
				merged[c] = rrow[c]
			}
			out.Rows = append(out.Rows, merged)
		}
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("inner join on %v produced no rows: %w", step.LeftKeys, models.ErrNoMatchingRows)
	}
	return out, nil
}

// joinKey canonicalizes the key tuple so that the same instant or number
// compares equal regardless of which source-native shape carries it.
func joinKey(row models.Row, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, canonicalKeyValue(row[k]))
	}
	return strings.Join(parts, "\x1f")
}

func canonicalKeyValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04")
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return s
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Filter returns the rows whose column equals the given string value,
// keeping the source column order.
func Filter(tbl *models.Table, col, value string) *models.Table {
	return FilterIn(tbl, col, []string{value})
}

// FilterIn returns the rows whose column equals any of the given values.
func FilterIn(tbl *models.Table, col string, values []string) *models.Table {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	out := models.NewTable(tbl.Cols...)
	for _, row := range tbl.Rows {
		if s, err := row.String(col); err == nil && want[s] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
