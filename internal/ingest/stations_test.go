package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStationsCSV(t *testing.T) {
	data := []byte("\ufeffCODIGO,nombre,comid,x,y\n" +
		"21237010, Rio Magdalena ,9017261,-75.1,4.2\n" +
		",Quebrada,9020000,-75.3,4.0\n")

	got, err := ParseStationsCSV(data, DefaultColumns)
	require.NoError(t, err)

	want := []domain.Station{
		{Code: "21237010", ReachID: 9017261, Name: "Rio Magdalena", Alert: domain.AlertNone},
		{ReachID: 9020000, Name: "Quebrada", Alert: domain.AlertNone},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stations mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got[1].Gauged())
}

func TestParseStationsCSVCustomColumns(t *testing.T) {
	data := []byte("station,reach\nA1,12\n")
	got, err := ParseStationsCSV(data, Columns{Code: "station", ReachID: "reach", Name: "name"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A1", got[0].Code)
	assert.Empty(t, got[0].Name, "name column is optional")
}

func TestParseStationsCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty csv"},
		{"missing reach column", "codigo,nombre\n1,a\n", `"comid"`},
		{"bad reach", "codigo,comid\n1,abc\n", "row 2"},
		{"zero reach", "codigo,comid\n1,0\n", "row 2"},
		{"short row", "codigo,comid\n1,2\n3\n", "row 3"},
		{"duplicate", "codigo,comid\n1,2\n1,2\n", "listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStationsCSV([]byte(tt.data), DefaultColumns)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseStationsYAML(t *testing.T) {
	got, err := ParseStationsYAML([]byte(`
stations:
  - code: "21237010"
    reach_id: 9017261
    name: Rio Magdalena
  - reach_id: 9020000
`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "21237010", got[0].Code)
	assert.Equal(t, domain.AlertNone, got[1].Alert)

	_, err = ParseStationsYAML([]byte("stations:\n  - code: x\n"))
	require.ErrorContains(t, err, "entry 1")
}

func TestLoadStationsPicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "stations.yml")
	require.NoError(t, os.WriteFile(yml, []byte("stations:\n  - reach_id: 5\n"), 0o600))
	csvPath := filepath.Join(dir, "stations.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("codigo,comid\nX,6\n"), 0o600))

	got, err := LoadStations(yml, DefaultColumns)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got[0].ReachID)

	got, err = LoadStations(csvPath, DefaultColumns)
	require.NoError(t, err)
	assert.Equal(t, "X", got[0].Code)

	_, err = LoadStations(filepath.Join(dir, "missing.csv"), DefaultColumns)
	require.ErrorContains(t, err, "read station list")
}
