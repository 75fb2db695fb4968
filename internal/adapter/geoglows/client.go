// Package geoglows reads forecast ensembles and historical simulations from
// the GEOGloWS ECMWF streamflow service.
package geoglows

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/csvseries"
	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

var simulationLayout = csvseries.Layout{
	TimeColumn:  "datetime",
	ValueColumn: "streamflow_m^3/s",
	TimeFormat:  timeFormat,
}

// Fetcher retrieves a remote document; see fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// Client reads GEOGloWS series for drainage reaches.
type Client struct {
	fetcher Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a GEOGloWS client rooted at baseURL (for example
// https://geoglows.ecmwf.int/api).
func NewClient(fetcher Fetcher, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// ForecastEnsemble returns the current forecast ensemble for a reach. A
// response missing member columns or with two rows or fewer is requested
// once more before the reach is reported as unavailable.
func (c *Client) ForecastEnsemble(ctx context.Context, reachID int64) (domain.Ensemble, error) {
	params := url.Values{
		"reach_id":      {strconv.FormatInt(reachID, 10)},
		"return_format": {"csv"},
	}
	id := strconv.FormatInt(reachID, 10)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, err := c.fetcher.Fetch(ctx, c.baseURL+"/ForecastEnsembles/", params)
		if err != nil {
			return domain.Ensemble{}, fmt.Errorf("forecast ensemble %d: %w", reachID, err)
		}
		ens, err := parseForecast(body, id)
		if err == nil {
			return ens, nil
		}
		lastErr = err
		c.logger.Warn("incomplete forecast ensemble", "reach_id", reachID, "error", err)
	}
	return domain.Ensemble{}, fmt.Errorf("forecast ensemble %d: %w: %w", reachID, domain.ErrDataUnavailable, lastErr)
}

// HistoricSimulation returns the ERA5-forced historical simulation for a reach.
func (c *Client) HistoricSimulation(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	params := url.Values{
		"reach_id":      {strconv.FormatInt(reachID, 10)},
		"forcing":       {"era_5"},
		"return_format": {"csv"},
	}
	body, err := c.fetcher.Fetch(ctx, c.baseURL+"/HistoricSimulation/", params)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("historic simulation %d: %w", reachID, err)
	}
	s, err := csvseries.ParseSeries(body, strconv.FormatInt(reachID, 10), simulationLayout)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("historic simulation %d: %w: %w", reachID, domain.ErrDataUnavailable, err)
	}
	return s, nil
}

func parseForecast(body []byte, id string) (domain.Ensemble, error) {
	if !csvseries.HasMemberColumns(body) {
		return domain.Ensemble{}, fmt.Errorf("want %d ensemble columns", domain.HighResMember)
	}
	ens, err := csvseries.ParseEnsemble(body, id, "datetime", timeFormat)
	if err != nil {
		return domain.Ensemble{}, err
	}
	if ens.Len() <= 2 {
		return domain.Ensemble{}, fmt.Errorf("only %d forecast rows", ens.Len())
	}
	return ens, nil
}
