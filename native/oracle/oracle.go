package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnavailable indicates that no registered source could produce a
	// quote for the requested feed.
	ErrUnavailable = errors.New("oracle: price unavailable")
	// ErrStalePrice indicates the freshest available quote is older than the
	// configured freshness window. Consumers must treat this as fatal.
	ErrStalePrice = errors.New("oracle: stale price")
)

// Quote captures a USD price for a feed along with the timestamp reported by
// the upstream source and the source identifier. Price is an integer scaled
// by 10^Decimals.
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Decimals: q.Decimals, Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Source resolves the latest USD quote for a price-feed identifier.
type Source interface {
	LatestPrice(feed string) (Quote, error)
}

func normaliseFeed(feed string) string {
	return strings.ToLower(strings.TrimSpace(feed))
}

// Aggregator consults a list of registered sources in priority order until a
// fresh quote is obtained. Quotes older than the freshness window are
// rejected with ErrStalePrice.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	maxAge   time.Duration
	now      func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority ordering
// and freshness window. A zero maxAge disables the staleness check.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]Source),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetClock overrides the time source. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Register adds or replaces a source under the supplied identifier.
// Identifiers are stored in lowercase so lookups remain consistent regardless
// of configuration casing.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// LatestPrice fetches a quote from the configured sources respecting the
// priority ordering. The aggregator enforces the freshness window and returns
// a defensive copy of the upstream value.
func (a *Aggregator) LatestPrice(feed string) (Quote, error) {
	if a == nil {
		return Quote{}, ErrUnavailable
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.now
	a.mu.RUnlock()

	id := normaliseFeed(feed)
	if id == "" {
		return Quote{}, fmt.Errorf("oracle: feed identifier required")
	}

	var lastErr error
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now().Add(-maxAge)
	}

	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[name]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.LatestPrice(id)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: source %s returned invalid price: %w", name, ErrUnavailable)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrStalePrice
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return Quote{}, lastErr
}

// ManualSource provides an in-memory source implementation used for tests and
// manual overrides during incident response.
type ManualSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualSource constructs an empty manual source instance.
func NewManualSource() *ManualSource {
	return &ManualSource{quotes: make(map[string]Quote)}
}

// Set stores the provided quote for the feed. The price is copied defensively.
func (m *ManualSource) Set(feed string, price *big.Int, decimals uint8, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	id := normaliseFeed(feed)
	if id == "" {
		return
	}
	m.mu.Lock()
	m.quotes[id] = Quote{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		Timestamp: ts,
		Source:    "manual",
	}
	m.mu.Unlock()
}

// LatestPrice retrieves the stored quote for the feed.
func (m *ManualSource) LatestPrice(feed string) (Quote, error) {
	if m == nil {
		return Quote{}, ErrUnavailable
	}
	m.mu.RLock()
	stored, ok := m.quotes[normaliseFeed(feed)]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, ErrUnavailable
	}
	return stored.Clone(), nil
}
