package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Columns names the station list CSV columns. Code may be blank on a row
// for a reach-only station.
type Columns struct {
	Code    string
	ReachID string
	Name    string
}

// DefaultColumns matches the exported national station table.
var DefaultColumns = Columns{Code: "codigo", ReachID: "comid", Name: "nombre"}

// LoadStations reads a station list from path. Files ending in .yaml or
// .yml are read as YAML, anything else as CSV with the given columns.
func LoadStations(path string, cols Columns) ([]domain.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station list: %w", err)
	}
	var stations []domain.Station
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		stations, err = ParseStationsYAML(data)
	default:
		stations, err = ParseStationsCSV(data, cols)
	}
	if err != nil {
		return nil, fmt.Errorf("station list %s: %w", path, err)
	}
	return stations, nil
}

type stationList struct {
	Stations []struct {
		Code    string `yaml:"code"`
		ReachID int64  `yaml:"reach_id"`
		Name    string `yaml:"name"`
	} `yaml:"stations"`
}

// ParseStationsYAML decodes a document of the form
//
//	stations:
//	  - code: "21237010"
//	    reach_id: 9017261
//	    name: Rio Magdalena
func ParseStationsYAML(data []byte) ([]domain.Station, error) {
	var list stationList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out := make([]domain.Station, 0, len(list.Stations))
	for i, s := range list.Stations {
		st := newStation(s.Code, s.ReachID, s.Name)
		if st.ReachID <= 0 {
			return nil, fmt.Errorf("entry %d: reach_id must be positive", i+1)
		}
		out = append(out, st)
	}
	return checkDuplicates(out)
}

// ParseStationsCSV decodes a station table with a header row. Columns
// other than cols are ignored.
func ParseStationsCSV(data []byte, cols Columns) ([]domain.Station, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	find := func(name string, required bool) (int, error) {
		i, ok := index[strings.ToLower(name)]
		if !ok && required {
			return 0, fmt.Errorf("csv has no %q column", name)
		}
		if !ok {
			return -1, nil
		}
		return i, nil
	}
	ci, err := find(cols.Code, true)
	if err != nil {
		return nil, err
	}
	ri, err := find(cols.ReachID, true)
	if err != nil {
		return nil, err
	}
	ni, _ := find(cols.Name, false)

	var out []domain.Station
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", line, len(row), len(header))
		}
		reach, err := strconv.ParseInt(strings.TrimSpace(row[ri]), 10, 64)
		if err != nil || reach <= 0 {
			return nil, fmt.Errorf("row %d: invalid %s %q", line, cols.ReachID, row[ri])
		}
		name := ""
		if ni >= 0 {
			name = row[ni]
		}
		out = append(out, newStation(row[ci], reach, name))
	}
	return checkDuplicates(out)
}

func newStation(code string, reachID int64, name string) domain.Station {
	return domain.Station{
		Code:    strings.TrimSpace(code),
		ReachID: reachID,
		Name:    strings.TrimSpace(name),
		Alert:   domain.AlertNone,
	}
}

func checkDuplicates(stations []domain.Station) ([]domain.Station, error) {
	seen := make(map[domain.Station]bool, len(stations))
	for _, st := range stations {
		k := domain.Station{Code: st.Code, ReachID: st.ReachID}
		if seen[k] {
			return nil, fmt.Errorf("station %s listed twice for reach %d", st.Key(), st.ReachID)
		}
		seen[k] = true
	}
	return stations, nil
}
