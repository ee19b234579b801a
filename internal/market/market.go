// Package market prices the assets users can invest in.
//
// Prices come from a chain of sources: a live quote endpoint first, then
// a static table whose prices drift slowly upward so repeated checks in
// a demo environment behave like a real market.
package market

import (
	"context"
	"fmt"

	"voicepay/internal/core"
)

// Tickers for the asset types the conversation understands.
var assetTickers = map[string]string{
	"gold":   "GOLDBEES.NS",
	"nifty":  "NIFTYBEES.NS",
	"liquid": "LIQUIDBEES.NS",
}

// TickerFor maps an asset type to its exchange ticker.
func TickerFor(assetType string) (string, bool) {
	ticker, ok := assetTickers[assetType]
	return ticker, ok
}

// AssetTypes lists the investable asset types.
func AssetTypes() []string {
	return []string{"gold", "liquid", "nifty"}
}

// Typical weekly returns in percent, used for the round-off savings
// recommendation when no live history is available.
var weeklyReturns = map[string]float64{
	"GOLDBEES.NS":   2.5,
	"NIFTYBEES.NS":  1.8,
	"LIQUIDBEES.NS": 0.15,
}

// WeeklyReturn reports the typical weekly return for a ticker.
func WeeklyReturn(ticker string) (float64, bool) {
	ret, ok := weeklyReturns[ticker]
	return ret, ok
}

// TopPerformerWeek returns the asset type and ticker with the best
// weekly return.
func TopPerformerWeek() (assetType, ticker string, weeklyReturn float64) {
	for _, asset := range AssetTypes() {
		t := assetTickers[asset]
		if ret, ok := weeklyReturns[t]; ok && ret > weeklyReturn {
			assetType, ticker, weeklyReturn = asset, t, ret
		}
	}
	return assetType, ticker, weeklyReturn
}

// PriceSource returns the current unit price in rupees for a ticker.
type PriceSource interface {
	Price(ctx context.Context, ticker string) (float64, error)
}

// Chain tries each source in order and returns the first price found.
type Chain struct {
	sources []PriceSource
}

func NewChain(sources ...PriceSource) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Price(ctx context.Context, ticker string) (float64, error) {
	for _, src := range c.sources {
		price, err := src.Price(ctx, ticker)
		if err == nil {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no source priced %s: %w", ticker, core.ErrPriceUnavailable)
}
