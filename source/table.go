// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MKuranowski/MuiWoFerry/schedule"
)

// Columns names the header cells of the timetable document.
type Columns struct {
	Direction string `yaml:"direction"`
	DayType   string `yaml:"day_type"`
	Time      string `yaml:"time"`
	Remark    string `yaml:"remark"`
}

var DefaultColumns = Columns{
	Direction: "Direction",
	DayType:   "Service Date",
	Time:      "Service Hour",
	Remark:    "Remark",
}

func (c Columns) row(record map[string]string) schedule.Row {
	return schedule.Row{
		Direction: record[c.Direction],
		DayType:   record[c.DayType],
		Time:      record[c.Time],
		Remark:    record[c.Remark],
	}
}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeCSV reads the rows of a comma-separated timetable with a header row.
// Missing trailing cells read as empty, surplus cells are ignored.
func DecodeCSV(data []byte, columns Columns) ([]schedule.Row, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("timetable csv: header: %w", err)
	}

	var rows []schedule.Row
	record := make(map[string]string, len(header))
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return rows, fmt.Errorf("timetable csv: %w", err)
		}

		for i, column := range header {
			if i < len(fields) {
				record[column] = fields[i]
			} else {
				record[column] = ""
			}
		}
		rows = append(rows, columns.row(record))
	}

	return rows, nil
}

// DecodeHTML reads the rows of the first <table> in an HTML document.
// The header is taken from the first row containing <th> cells.
func DecodeHTML(data []byte, columns Columns) ([]schedule.Row, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, fmt.Errorf("timetable html: %w", err)
	}

	table := document.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("timetable html: no table")
	}

	var header []string
	var rows []schedule.Row

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if header == nil {
			if th := tr.Find("th"); th.Length() > 0 {
				header = th.Map(func(_ int, s *goquery.Selection) string { return cellText(s) })
			}
			return
		}

		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}

		record := make(map[string]string, len(header))
		cells.Each(func(i int, td *goquery.Selection) {
			if i < len(header) {
				record[header[i]] = cellText(td)
			}
		})
		rows = append(rows, columns.row(record))
	})

	if header == nil {
		return nil, fmt.Errorf("timetable html: no header row")
	}
	return rows, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// Timetable fetches and decodes the timetable document.
type Timetable struct {
	Fetcher Fetcher
	Format  Format
	Columns Columns
}

func (t Timetable) Rows(ctx context.Context) ([]schedule.Row, error) {
	data, err := t.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	switch t.Format {
	case FormatCSV, "":
		return DecodeCSV(data, t.Columns)
	case FormatHTML:
		return DecodeHTML(data, t.Columns)
	default:
		return nil, fmt.Errorf("timetable: unknown format %q", t.Format)
	}
}
