// Package csvseries decodes the CSV layouts served by the streamflow data
// sources: a timestamp column plus one value column, or a timestamp column
// plus one column per ensemble member.
package csvseries

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// Layout names the columns and timestamp format of a series CSV.
type Layout struct {
	TimeColumn  string
	ValueColumn string
	TimeFormat  string
}

var memberColumn = regexp.MustCompile(`^ensemble_(\d+)_m\^3/s$`)

// ParseSeries decodes a single-valued series. Blank or non-numeric cells
// become NaN; rows with a blank timestamp are skipped.
func ParseSeries(data []byte, id string, layout Layout) (domain.TimeSeries, error) {
	header, rows, err := readAll(data)
	if err != nil {
		return domain.TimeSeries{}, err
	}
	ti, err := columnIndex(header, layout.TimeColumn)
	if err != nil {
		return domain.TimeSeries{}, err
	}
	vi, err := columnIndex(header, layout.ValueColumn)
	if err != nil {
		return domain.TimeSeries{}, err
	}

	s := domain.TimeSeries{ID: id, Points: make([]domain.Point, 0, len(rows))}
	for n, row := range rows {
		if strings.TrimSpace(row[ti]) == "" {
			continue
		}
		t, err := time.Parse(layout.TimeFormat, strings.TrimSpace(row[ti]))
		if err != nil {
			return domain.TimeSeries{}, fmt.Errorf("row %d: %w", n+2, err)
		}
		s.Points = append(s.Points, domain.Point{Time: t.UTC(), Value: parseValue(row[vi])})
	}
	return s, nil
}

// ParseEnsemble decodes a forecast table. Columns named
// ensemble_NN_m^3/s become members in member order; member 52 is the
// high-resolution run. Other columns are ignored.
func ParseEnsemble(data []byte, id, timeColumn, timeFormat string) (domain.Ensemble, error) {
	header, rows, err := readAll(data)
	if err != nil {
		return domain.Ensemble{}, err
	}
	ti, err := columnIndex(header, timeColumn)
	if err != nil {
		return domain.Ensemble{}, err
	}

	type member struct {
		number int
		col    int
	}
	var members []member
	highRes := -1
	for i, name := range header {
		m := memberColumn.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n == domain.HighResMember {
			highRes = i
			continue
		}
		members = append(members, member{number: n, col: i})
	}
	sort.Slice(members, func(a, b int) bool { return members[a].number < members[b].number })

	e := domain.Ensemble{ID: id, Members: make([][]float64, len(members))}
	for _, row := range rows {
		if strings.TrimSpace(row[ti]) == "" {
			continue
		}
		t, err := time.Parse(timeFormat, strings.TrimSpace(row[ti]))
		if err != nil {
			return domain.Ensemble{}, fmt.Errorf("parse %s: %w", timeColumn, err)
		}
		e.Times = append(e.Times, t.UTC())
		for m, mem := range members {
			e.Members[m] = append(e.Members[m], parseValue(row[mem.col]))
		}
		hr := math.NaN()
		if highRes >= 0 {
			hr = parseValue(row[highRes])
		}
		e.HighRes = append(e.HighRes, hr)
	}
	return e, nil
}

// HasMemberColumns reports whether an ensemble carries every perturbed
// member and the high-resolution column.
func HasMemberColumns(data []byte) bool {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return false
	}
	n := 0
	for _, name := range header {
		if memberColumn.MatchString(strings.TrimSpace(name)) {
			n++
		}
	}
	return n >= domain.PerturbedMembers+1
}

func readAll(data []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, nil, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(row), len(header))
		}
	}
	return header, rows, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("csv has no %q column", name)
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
