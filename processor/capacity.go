package processor

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gridflow/models"
)

const (
	capacitySheet = "Capacity by Resource Category"
	capacityCell  = "D4"
)

// CapacityConstant extracts the total installed thermal capacity scalar
// from the monthly outlook workbook. The value lives in a fixed cell of a
// fixed sheet; an absent or non-numeric cell means the report layout
// changed and the run must not proceed with a stale or zero capacity.
func CapacityConstant(workbook []byte) (float64, error) {
	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		return 0, fmt.Errorf("open capacity workbook: %w", err)
	}
	defer f.Close()

	raw, err := f.GetCellValue(capacitySheet, capacityCell)
	if err != nil {
		return 0, fmt.Errorf("read %s!%s: %w: %w", capacitySheet, capacityCell, err, models.ErrMissingCapacityValue)
	}
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0, fmt.Errorf("cell %s!%s is empty: %w", capacitySheet, capacityCell, models.ErrMissingCapacityValue)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("cell %s!%s value %q is not numeric: %w", capacitySheet, capacityCell, raw, models.ErrMissingCapacityValue)
	}
	return v, nil
}
