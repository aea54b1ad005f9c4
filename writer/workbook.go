package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"gridflow/logger"
	"gridflow/models"
)

// Sheet pairs a worksheet name with the table it renders.
type Sheet struct {
	Name  string
	Table *models.Table
}

// WorkbookWriter renders tables into styled xlsx artifacts in the
// production directory. File names carry the run timestamp so successive
// runs never overwrite each other.
type WorkbookWriter struct {
	dir string
	log *logger.Log
}

func NewWorkbookWriter(dir string) *WorkbookWriter {
	return &WorkbookWriter{dir: dir, log: logger.GetLogger()}
}

// ArtifactName builds the timestamped file name for one artifact.
func ArtifactName(base string, at time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", base, at.Format("2006-01-02_T15_04_05"))
}

// Write renders the sheets into one workbook and returns the full path of
// the written file.
func (w *WorkbookWriter) Write(base string, at time.Time, sheets ...Sheet) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook %s: no sheets to write", base)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"008080"}},
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return "", fmt.Errorf("header style: %w", err)
	}

	for i, sheet := range sheets {
		name := sheet.Name
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return "", fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return "", fmt.Errorf("add sheet %s: %w", name, err)
			}
		}
		if err := renderSheet(f, name, sheet.Table, headerStyle); err != nil {
			return "", fmt.Errorf("sheet %s: %w", name, err)
		}
	}

	path := filepath.Join(w.dir, ArtifactName(base, at))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}

	w.log.WithComponent("workbook_writer").WithFields(logger.Fields{
		"path":   path,
		"sheets": len(sheets),
	}).Info("workbook written")
	return path, nil
}

func renderSheet(f *excelize.File, name string, tbl *models.Table, headerStyle int) error {
	for c, col := range tbl.Cols {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(name, cell, col); err != nil {
			return err
		}
	}
	if len(tbl.Cols) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, 1)
		last, _ := excelize.CoordinatesToCellName(len(tbl.Cols), 1)
		if err := f.SetCellStyle(name, first, last, headerStyle); err != nil {
			return err
		}
	}

	widths := make([]int, len(tbl.Cols))
	for c, col := range tbl.Cols {
		widths[c] = len(col)
	}

	for r, row := range tbl.Rows {
		for c, col := range tbl.Cols {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			v := cellValue(row[col])
			if err := f.SetCellValue(name, cell, v); err != nil {
				return err
			}
			if l := len(fmt.Sprintf("%v", v)); l > widths[c] {
				widths[c] = l
			}
		}
	}

	for c := range tbl.Cols {
		colName, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		width := widths[c] + 2
		if width < 10 {
			width = 10
		}
		if width > 60 {
			width = 60
		}
		if err := f.SetColWidth(name, colName, colName, float64(width)); err != nil {
			return err
		}
	}
	return nil
}

// cellValue maps table values onto the types excelize renders natively.
func cellValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format("2006-01-02 15:04")
	case nil:
		return ""
	default:
		return v
	}
}
