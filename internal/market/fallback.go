package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"voicepay/internal/core"
)

// Baseline prices in rupees, used when no live source answers.
var fallbackPrices = map[string]float64{
	"GOLDBEES.NS":   72.8,
	"NIFTYBEES.NS":  285.0,
	"LIQUIDBEES.NS": 1000.0,
}

// driftEvery is how many reads of a ticker pass between price bumps.
const driftEvery = 3

// FallbackSource serves the static table with simulated upward drift:
// every third read of a ticker bumps its price by a small fraction. The
// drift function is injected so tests control it; the state is owned by
// the instance, never global.
type FallbackSource struct {
	mu     sync.Mutex
	prices map[string]float64
	checks map[string]int
	drift  func() float64
}

// NewFallbackSource builds a source with its own copy of the baseline
// table. A nil drift gets the default 0.1-0.5% random bump.
func NewFallbackSource(drift func() float64) *FallbackSource {
	if drift == nil {
		drift = func() float64 { return 0.001 + rand.Float64()*0.004 }
	}
	prices := make(map[string]float64, len(fallbackPrices))
	for ticker, price := range fallbackPrices {
		prices[ticker] = price
	}
	return &FallbackSource{
		prices: prices,
		checks: make(map[string]int),
		drift:  drift,
	}
}

func (f *FallbackSource) Price(_ context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[ticker]
	if !ok {
		return 0, fmt.Errorf("no fallback price for %s: %w", ticker, core.ErrPriceUnavailable)
	}

	f.checks[ticker]++
	if f.checks[ticker] >= driftEvery {
		f.checks[ticker] = 0
		price *= 1 + f.drift()
		f.prices[ticker] = price
	}
	return price, nil
}
