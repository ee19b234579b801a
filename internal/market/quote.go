package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"voicepay/internal/core"
)

// QuoteSource fetches live prices from an HTTP quote endpoint that
// answers GET {base}/quote?symbol=TICKER with {"symbol": ..., "price": ...}.
type QuoteSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewQuoteSource(baseURL, apiKey string) *QuoteSource {
	return &QuoteSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func (q *QuoteSource) Price(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s", q.baseURL, url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}
	if q.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch quote for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote endpoint returned %d for %s: %w",
			resp.StatusCode, ticker, core.ErrPriceUnavailable)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	if quote.Price <= 0 {
		return 0, fmt.Errorf("non-positive quote for %s: %w", ticker, core.ErrPriceUnavailable)
	}
	return quote.Price, nil
}
