package tabular

import (
	"bytes"
	"strings"

	"github.com/extrame/xls"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// metadataSheets are skipped when choosing the data sheet.
var metadataSheets = map[string]bool{
	"info":     true,
	"metadata": true,
	"about":    true,
	"readme":   true,
	"notes":    true,
}

// selectSheet returns the index of the first sheet not named like a
// metadata sheet, or the last sheet when all of them are.
func selectSheet(names []string) int {
	for i, name := range names {
		if !metadataSheets[strings.ToLower(strings.TrimSpace(name))] {
			return i
		}
	}
	return len(names) - 1
}

func readXLSX(content []byte) ([][]string, string, error) {
	f, err := xlsx.OpenBinary(content)
	if err != nil {
		return nil, "", eris.Wrap(err, "xlsx: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, "", ErrNoSheets
	}

	names := make([]string, len(f.Sheets))
	for i, s := range f.Sheets {
		names[i] = s.Name
	}
	sheet := f.Sheets[selectSheet(names)]

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return trimTrailingBlank(rows), sheet.Name, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell != nil {
			cells[j] = cell.String()
		}
	}
	return cells
}

func readXLS(content []byte) (rows [][]string, name string, err error) {
	// The BIFF reader panics on some malformed workbooks.
	defer func() {
		if r := recover(); r != nil {
			rows, name, err = nil, "", eris.Errorf("xls: malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, "", eris.Wrap(err, "xls: open workbook")
	}
	n := wb.NumSheets()
	if n == 0 {
		return nil, "", ErrNoSheets
	}

	names := make([]string, n)
	for i := 0; i < n; i++ {
		if s := wb.GetSheet(i); s != nil {
			names[i] = s.Name
		}
	}
	sheet := wb.GetSheet(selectSheet(names))
	if sheet == nil {
		return nil, "", ErrNoSheets
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		rows = append(rows, xlsRow(sheet, i))
	}
	return trimTrailingBlank(rows), sheet.Name, nil
}

// xlsRow reads one BIFF row. Rows absent from a sparse sheet come back as
// nil; the reader dereferences them without a check, hence the recover.
func xlsRow(sheet *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()
	row := sheet.Row(i)
	if row == nil {
		return nil
	}
	cells = make([]string, row.LastCol())
	for c := range cells {
		cells[c] = row.Col(c)
	}
	return cells
}

// trimTrailingBlank drops rows at the end of a sheet that hold no values.
func trimTrailingBlank(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && blank(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
