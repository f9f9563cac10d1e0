// Package tabular parses CSV, TSV, XLS and XLSX files into aligned rows
// under normalized headers.
package tabular

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrUnsupportedFileType = eris.New("unsupported file type")
	ErrEmptyFile           = eris.New("empty file")
	ErrNoSheets            = eris.New("workbook has no sheets")
)

// ParseError reports why a file could not be parsed.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tabular: parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Table is a parsed file. Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
	// Sheet is the selected worksheet, empty for delimited files.
	Sheet string
}

// Format is a supported file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat returns the format implied by a file name's extension.
func DetectFormat(filename string) (Format, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return FormatCSV, true
	case ".tsv":
		return FormatTSV, true
	case ".xlsx":
		return FormatXLSX, true
	case ".xls":
		return FormatXLS, true
	}
	return "", false
}

// Supported reports whether filename has a parseable extension.
func Supported(filename string) bool {
	_, ok := DetectFormat(filename)
	return ok
}

// ole2Magic starts every legacy BIFF workbook.
var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Parse dispatches on the file extension and returns the aligned table.
// The first row is always the header row. All errors are *ParseError.
func Parse(filename string, content []byte) (*Table, error) {
	format, ok := DetectFormat(filename)
	if !ok {
		return nil, &ParseError{File: filename, Err: eris.Wrapf(ErrUnsupportedFileType, "extension %q", path.Ext(filename))}
	}

	var (
		raw   [][]string
		sheet string
		err   error
	)
	switch format {
	case FormatCSV:
		raw, err = readDelimited(content, delimitedOptions{Delimiter: ','})
	case FormatTSV:
		raw, err = readDelimited(content, delimitedOptions{Delimiter: '\t'})
	case FormatXLSX, FormatXLS:
		// Spreadsheets are sniffed: .xls files are often OOXML in disguise.
		if bytes.HasPrefix(content, ole2Magic) {
			raw, sheet, err = readXLS(content)
		} else {
			raw, sheet, err = readXLSX(content)
		}
	}
	if err != nil {
		return nil, &ParseError{File: filename, Err: err}
	}
	if len(raw) == 0 {
		return nil, &ParseError{File: filename, Err: ErrEmptyFile}
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = NormalizeColumnName(h)
	}

	return &Table{
		Headers: headers,
		Rows:    align(raw[1:], len(headers)),
		Sheet:   sheet,
	}, nil
}

// align pads short rows with "" and truncates long ones to width.
func align(rows [][]string, width int) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		switch {
		case len(row) == width:
			out[i] = row
		case len(row) > width:
			out[i] = row[:width]
		default:
			padded := make([]string, width)
			copy(padded, row)
			out[i] = padded
		}
	}
	return out
}
