package export

import "fmt"

// Field is one labelled line printed above a table.
type Field struct {
	Label string
	Value string
}

// Column describes a table column. Key heads the CSV file, Label heads the PDF table and
// Width is the share of the printable width the column gets in the PDF.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Sheet is a titled table with an optional heading block. Rows are ordered like Columns.
type Sheet struct {
	Title     string
	Heading   []Field
	Columns   []Column
	Rows      [][]string
	EmptyText string
}

func (s Sheet) validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("sheet %q has no columns", s.Title)
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i+1, len(row), len(s.Columns))
		}
	}
	return nil
}

// widths scales the relative column widths to total.
func (s Sheet) widths(total float64) []float64 {
	sum := 0.0
	for _, col := range s.Columns {
		if col.Width > 0 {
			sum += col.Width
		} else {
			sum++
		}
	}
	out := make([]float64, len(s.Columns))
	for i, col := range s.Columns {
		w := col.Width
		if w <= 0 {
			w = 1
		}
		out[i] = total * w / sum
	}
	return out
}
