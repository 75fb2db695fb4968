package geoglows

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"golang.org/x/sync/singleflight"
)

// SimulationSource returns the historical simulation of a reach.
type SimulationSource interface {
	HistoricSimulation(ctx context.Context, reachID int64) (domain.TimeSeries, error)
}

// CachedSimulations keeps recently fetched historical simulations in memory.
// A reach is refetched once its entry is older than the TTL, and concurrent
// misses for the same reach share one upstream request. At most maxEntries
// reaches are held; the least recently read is dropped first.
type CachedSimulations struct {
	inner      SimulationSource
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	inflight   singleflight.Group

	mu      sync.Mutex
	recency *list.List // of *cachedSimulation, most recently read at the front
	byReach map[int64]*list.Element
}

type cachedSimulation struct {
	reachID   int64
	series    domain.TimeSeries
	fetchedAt time.Time
}

// NewCachedSimulations wraps inner with a cache of up to maxEntries reaches.
// A zero ttl keeps entries until they are evicted.
func NewCachedSimulations(inner SimulationSource, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedSimulations {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &CachedSimulations{
		inner:      inner,
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		recency:    list.New(),
		byReach:    make(map[int64]*list.Element),
	}
}

func (c *CachedSimulations) HistoricSimulation(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	s, result := c.lookup(reachID)
	c.metrics.SimulationCache.WithLabelValues(result).Inc()
	if result == "hit" {
		return s, nil
	}

	v, err, _ := c.inflight.Do(strconv.FormatInt(reachID, 10), func() (any, error) {
		s, err := c.inner.HistoricSimulation(ctx, reachID)
		if err != nil {
			return nil, err
		}
		// Empty series are not kept so a reach briefly missing upstream is retried.
		if s.Len() > 0 {
			c.store(reachID, s)
		}
		return s, nil
	})
	if err != nil {
		return domain.TimeSeries{}, err
	}
	return v.(domain.TimeSeries), nil
}

// Len reports how many reaches are cached.
func (c *CachedSimulations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// lookup returns the cached series and the cache result label: hit, miss
// or expired. Expired entries are removed.
func (c *CachedSimulations) lookup(reachID int64) (domain.TimeSeries, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byReach[reachID]
	if !ok {
		return domain.TimeSeries{}, "miss"
	}
	entry := el.Value.(*cachedSimulation)
	if c.ttl > 0 && !domain.Now().Before(entry.fetchedAt.Add(c.ttl)) {
		c.remove(el)
		return domain.TimeSeries{}, "expired"
	}
	c.recency.MoveToFront(el)
	return entry.series, "hit"
}

func (c *CachedSimulations) store(reachID int64, s domain.TimeSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := domain.Now()
	if el, ok := c.byReach[reachID]; ok {
		entry := el.Value.(*cachedSimulation)
		entry.series, entry.fetchedAt = s, now
		c.recency.MoveToFront(el)
		return
	}
	c.byReach[reachID] = c.recency.PushFront(&cachedSimulation{reachID: reachID, series: s, fetchedAt: now})
	for c.recency.Len() > c.maxEntries {
		c.remove(c.recency.Back())
	}
}

func (c *CachedSimulations) remove(el *list.Element) {
	delete(c.byReach, el.Value.(*cachedSimulation).reachID)
	c.recency.Remove(el)
}
