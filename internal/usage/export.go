package usage

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the ledger as an Excel workbook, one sheet per month,
// oldest month first.
func (t *Tracker) ExportXLSX(path string) error {
	snap := t.Snapshot()
	if len(snap) == 0 {
		return fmt.Errorf("usage ledger is empty")
	}
	months := make([]string, 0, len(snap))
	for k := range snap {
		months = append(months, k)
	}
	sort.Strings(months)

	f := excelize.NewFile()
	defer f.Close()
	for i, month := range months {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", month); err != nil {
				return fmt.Errorf("naming sheet %s: %w", month, err)
			}
		} else if _, err := f.NewSheet(month); err != nil {
			return fmt.Errorf("adding sheet %s: %w", month, err)
		}
		if err := writeMonthSheet(f, month, snap[month]); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeMonthSheet(f *excelize.File, sheet string, m Month) error {
	rows := [][]any{{"Time", "Type", "Model", "Prompt tokens", "Completion tokens", "Duration (s)", "Cost (USD)"}}
	for _, e := range m.Breakdown {
		rows = append(rows, []any{
			e.Timestamp,
			e.Kind,
			e.Details["model"],
			e.Details["prompt_tokens"],
			e.Details["completion_tokens"],
			e.Details["duration_seconds"],
			e.Cost,
		})
	}
	rows = append(rows, []any{"Total", nil, nil, nil, nil, nil, m.TotalCost})

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing sheet %s: %w", sheet, err)
		}
	}
	return nil
}
