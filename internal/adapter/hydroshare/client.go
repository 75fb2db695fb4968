// Package hydroshare reads observed discharge records published as CSV files
// in a HydroShare resource.
package hydroshare

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/csvseries"
	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// DefaultResource holds the national discharge archive.
const DefaultResource = "1a02d68216f24a7fbde3669b7760652d"

var observedLayout = csvseries.Layout{
	TimeColumn:  "Datetime",
	ValueColumn: "Streamflow (m3/s)",
	TimeFormat:  "2006-01-02",
}

// Fetcher retrieves a remote document; see fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
}

// Client reads observed series by station code.
type Client struct {
	fetcher  Fetcher
	baseURL  string
	resource string
}

// NewClient creates a HydroShare client. An empty resource selects
// DefaultResource.
func NewClient(fetcher Fetcher, baseURL, resource string) *Client {
	if resource == "" {
		resource = DefaultResource
	}
	return &Client{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		resource: resource,
	}
}

// Observed returns the daily discharge record of a gauging station.
func (c *Client) Observed(ctx context.Context, code string) (domain.TimeSeries, error) {
	if code == "" {
		return domain.TimeSeries{}, fmt.Errorf("observed series: empty station code: %w", domain.ErrDataUnavailable)
	}
	raw := fmt.Sprintf("%s/%s/data/contents/Discharge_Data/%s.csv", c.baseURL, c.resource, url.PathEscape(code))
	body, err := c.fetcher.Fetch(ctx, raw, nil)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("observed series %s: %w", code, err)
	}
	s, err := csvseries.ParseSeries(body, code, observedLayout)
	if err != nil {
		return domain.TimeSeries{}, fmt.Errorf("observed series %s: %w: %w", code, domain.ErrDataUnavailable, err)
	}
	return s, nil
}
