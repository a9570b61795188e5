package table

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

// ErrNoData is returned when no keyword produced a series.
var ErrNoData = errors.New("no keyword returned data")

type EmptyColumnPolicy string

const (
	// OmitEmpty drops keywords without data from the table.
	OmitEmpty EmptyColumnPolicy = "omit"
	// IncludeEmpty keeps them as all-missing columns so chart ranges stay stable.
	IncludeEmpty EmptyColumnPolicy = "include"
)

type Options struct {
	EmptyColumns EmptyColumnPolicy
}

type Cell struct {
	Value   int
	Present bool
}

type Column struct {
	Keyword string
	Cells   []Cell
}

// Table is a wide table: one row per date, one column per keyword.
type Table struct {
	Dates   []time.Time
	Columns []Column
}

// Assemble aligns successful series on the sorted union of their dates.
// Columns follow the input order. It does not modify outcomes.
func Assemble(outcomes []trends.Outcome, opts Options) (*Table, error) {
	seen := make(map[int64]time.Time)
	succeeded := 0
	for _, o := range outcomes {
		if o.Status != trends.StatusSuccess {
			continue
		}
		succeeded++
		for _, p := range o.Series {
			seen[p.Time.UnixNano()] = p.Time
		}
	}
	if succeeded == 0 {
		return nil, ErrNoData
	}

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int {
		return cmp.Compare(a.UnixNano(), b.UnixNano())
	})

	index := make(map[int64]int, len(dates))
	for i, d := range dates {
		index[d.UnixNano()] = i
	}

	t := &Table{Dates: dates}
	for _, o := range outcomes {
		if o.Status != trends.StatusSuccess && opts.EmptyColumns != IncludeEmpty {
			continue
		}

		cells := make([]Cell, len(dates))
		for _, p := range o.Series {
			if !p.HasData {
				continue
			}
			cells[index[p.Time.UnixNano()]] = Cell{Value: p.Value, Present: true}
		}
		t.Columns = append(t.Columns, Column{Keyword: o.Keyword, Cells: cells})
	}

	return t, nil
}

type RenderOptions struct {
	DateHeader    string
	DateFormat    string
	MissingMarker string
}

// Values renders the table as sheet rows: a header row followed by one row
// per date.
func (t *Table) Values(opts RenderOptions) [][]interface{} {
	layout := cmp.Or(opts.DateFormat, "2006-01-02")

	header := make([]interface{}, 0, len(t.Columns)+1)
	header = append(header, cmp.Or(opts.DateHeader, "Date"))
	for _, c := range t.Columns {
		header = append(header, c.Keyword)
	}

	rows := make([][]interface{}, 0, len(t.Dates)+1)
	rows = append(rows, header)
	for i, d := range t.Dates {
		row := make([]interface{}, 0, len(t.Columns)+1)
		row = append(row, d.Format(layout))
		for _, c := range t.Columns {
			if c.Cells[i].Present {
				row = append(row, c.Cells[i].Value)
			} else {
				row = append(row, opts.MissingMarker)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (t *Table) RowCount() int {
	return len(t.Dates)
}

func (t *Table) ColumnCount() int {
	return len(t.Columns)
}
