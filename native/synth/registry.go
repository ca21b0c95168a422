package synth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errRegistryMismatch = errors.New("synth registry: asset and feed lists must have equal length")
	errRegistryEmpty    = errors.New("synth registry: at least one collateral asset required")
)

// Asset pairs a collateral symbol with its price-feed identifier.
type Asset struct {
	Symbol string
	Feed   string
}

// Registry is the immutable, ordered set of supported collateral assets.
// Populated once at construction; an asset not present is rejected as
// unsupported.
type Registry struct {
	assets []Asset
	feeds  map[string]string
}

// NewRegistry builds a registry from parallel symbol and feed lists.
// Mismatched list lengths, empty entries and duplicate symbols fail
// construction.
func NewRegistry(symbols, feeds []string) (*Registry, error) {
	if len(symbols) != len(feeds) {
		return nil, errRegistryMismatch
	}
	if len(symbols) == 0 {
		return nil, errRegistryEmpty
	}
	reg := &Registry{
		assets: make([]Asset, 0, len(symbols)),
		feeds:  make(map[string]string, len(symbols)),
	}
	for i := range symbols {
		symbol := strings.ToLower(strings.TrimSpace(symbols[i]))
		feed := strings.ToLower(strings.TrimSpace(feeds[i]))
		if symbol == "" {
			return nil, fmt.Errorf("synth registry: empty asset symbol at index %d", i)
		}
		if feed == "" {
			return nil, fmt.Errorf("synth registry: empty feed for asset %s", symbol)
		}
		if _, exists := reg.feeds[symbol]; exists {
			return nil, fmt.Errorf("synth registry: duplicate asset %s", symbol)
		}
		reg.feeds[symbol] = feed
		reg.assets = append(reg.assets, Asset{Symbol: symbol, Feed: feed})
	}
	return reg, nil
}

// Feed resolves the price-feed identifier for the asset.
func (r *Registry) Feed(symbol string) (string, bool) {
	if r == nil {
		return "", false
	}
	feed, ok := r.feeds[strings.ToLower(strings.TrimSpace(symbol))]
	return feed, ok
}

// Supports reports whether the asset is registered.
func (r *Registry) Supports(symbol string) bool {
	_, ok := r.Feed(symbol)
	return ok
}

// Assets returns the registered assets in construction order.
func (r *Registry) Assets() []Asset {
	if r == nil {
		return nil
	}
	return append([]Asset(nil), r.assets...)
}
