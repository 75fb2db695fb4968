package geoglows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/fetch"
	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedFetcher returns its bodies in order and records each request.
type scriptedFetcher struct {
	bodies [][]byte
	err    error
	urls   []string
	params []url.Values
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string, params url.Values) ([]byte, error) {
	f.urls = append(f.urls, rawURL)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	body := f.bodies[0]
	if len(f.bodies) > 1 {
		f.bodies = f.bodies[1:]
	}
	return body, nil
}

func forecastCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("datetime")
	for m := 1; m <= domain.HighResMember; m++ {
		b.WriteString("," + domain.MemberColumn(m))
	}
	b.WriteString("\n")
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for r := 0; r < rows; r++ {
		b.WriteString(start.Add(time.Duration(r) * 3 * time.Hour).Format(timeFormat))
		for m := 1; m <= domain.HighResMember; m++ {
			fmt.Fprintf(&b, ",%d", m+r)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func TestForecastEnsemble(t *testing.T) {
	f := &scriptedFetcher{bodies: [][]byte{forecastCSV(4)}}
	c := NewClient(f, "https://geoglows.example/api/", discardLogger())

	ens, err := c.ForecastEnsemble(context.Background(), 9017261)
	require.NoError(t, err)

	assert.Equal(t, "9017261", ens.ID)
	assert.Equal(t, 4, ens.Len())
	assert.Equal(t, domain.PerturbedMembers, ens.MemberCount())
	assert.Equal(t, 52.0, ens.HighRes[0])
	require.Len(t, f.urls, 1)
	assert.Equal(t, "https://geoglows.example/api/ForecastEnsembles/", f.urls[0])
	assert.Equal(t, "9017261", f.params[0].Get("reach_id"))
	assert.Equal(t, "csv", f.params[0].Get("return_format"))
}

func TestForecastEnsembleRefetchesIncompleteResponse(t *testing.T) {
	f := &scriptedFetcher{bodies: [][]byte{forecastCSV(2), forecastCSV(5)}}
	c := NewClient(f, "https://geoglows.example/api", discardLogger())

	ens, err := c.ForecastEnsemble(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, ens.Len())
	assert.Len(t, f.urls, 2)
}

func TestForecastEnsembleGivesUpAfterSecondBadResponse(t *testing.T) {
	short := []byte("datetime,ensemble_01_m^3/s\n2024-06-01T00:00:00Z,1\n")
	f := &scriptedFetcher{bodies: [][]byte{short}}
	c := NewClient(f, "https://geoglows.example/api", discardLogger())

	_, err := c.ForecastEnsemble(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Len(t, f.urls, 2)
}

func TestForecastEnsembleFetchError(t *testing.T) {
	f := &scriptedFetcher{err: fmt.Errorf("geoglows: %w", domain.ErrDataUnavailable)}
	c := NewClient(f, "https://geoglows.example/api", discardLogger())

	_, err := c.ForecastEnsemble(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Len(t, f.urls, 1, "transport failures are retried by the fetcher, not here")
}

func TestHistoricSimulation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/HistoricSimulation/", r.URL.Path)
		assert.Equal(t, "era_5", r.URL.Query().Get("forcing"))
		assert.Equal(t, "9017261", r.URL.Query().Get("reach_id"))
		_, _ = w.Write([]byte("datetime,streamflow_m^3/s\n1979-01-01T00:00:00Z,31.2\n1979-01-02T00:00:00Z,30.8\n"))
	}))
	defer srv.Close()

	fetcher := fetch.NewClient("geoglows", fetch.Options{MaxAttempts: 1, Timeout: time.Second},
		observability.NewMetricsForTesting(), discardLogger())
	c := NewClient(fetcher, srv.URL+"/api", discardLogger())

	s, err := c.HistoricSimulation(context.Background(), 9017261)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, time.Date(1979, 1, 2, 0, 0, 0, 0, time.UTC), s.Points[1].Time)
	assert.Equal(t, 30.8, s.Points[1].Value)
}

func TestHistoricSimulationBadPayload(t *testing.T) {
	f := &scriptedFetcher{bodies: [][]byte{[]byte("<html>maintenance</html>")}}
	c := NewClient(f, "https://geoglows.example/api", discardLogger())

	_, err := c.HistoricSimulation(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.False(t, errors.Is(err, domain.ErrAlignment))
}
