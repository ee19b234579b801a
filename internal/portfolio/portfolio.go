// Package portfolio manages investments: buying into assets at live
// prices and valuing what an account already holds.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicepay/internal/core"
	"voicepay/internal/market"
	"voicepay/internal/storage"
)

type Service struct {
	storage *storage.SQLiteRepository
	prices  market.PriceSource
}

func NewService(storage *storage.SQLiteRepository, prices market.PriceSource) *Service {
	return &Service{storage: storage, prices: prices}
}

// InvestResult reports a completed purchase.
type InvestResult struct {
	NewBalance core.Money
	AssetType  string
	Invested   core.Money
	Units      float64
	UnitPrice  float64
}

// Invest buys into an asset at the current price. It is a hard stop
// when no source can price the asset; unpriced units must never enter
// the ledger.
func (s *Service) Invest(ctx context.Context, accountID int64, assetType string, amount core.Money) (InvestResult, error) {
	if err := amount.Validate(); err != nil {
		return InvestResult{}, err
	}
	ticker, ok := market.TickerFor(assetType)
	if !ok {
		return InvestResult{}, fmt.Errorf("%w: %q", core.ErrUnknownAsset, assetType)
	}

	price, err := s.prices.Price(ctx, ticker)
	if err != nil {
		return InvestResult{}, fmt.Errorf("price %s: %w", ticker, err)
	}

	units := amount.Rupees() / price
	newBalance, err := s.storage.Invest(ctx, core.Holding{
		AccountID: accountID,
		AssetType: assetType,
		Amount:    amount,
		Units:     units,
		UnitPrice: price,
	})
	if err != nil {
		return InvestResult{}, err
	}

	slog.InfoContext(ctx, "Investment completed",
		"account_id", accountID,
		"asset_type", assetType,
		"amount_paise", amount.Paise,
		"units", units,
		"unit_price", price)

	return InvestResult{
		NewBalance: newBalance,
		AssetType:  assetType,
		Invested:   amount,
		Units:      units,
		UnitPrice:  price,
	}, nil
}

// Position values one asset type within a portfolio.
type Position struct {
	AssetType     string
	Invested      core.Money
	Units         float64
	AvgUnitPrice  float64
	CurrentPrice  float64
	CurrentValue  core.Money
	Returns       core.Money
	ReturnPercent float64
}

// Summary is the whole portfolio valued at current prices.
type Summary struct {
	TotalInvested core.Money
	CurrentValue  core.Money
	TotalReturn   core.Money
	ReturnPercent float64
	Positions     []Position
}

// Portfolio values every position at the current price, falling back to
// the average purchase price when no source answers.
func (s *Service) Portfolio(ctx context.Context, accountID int64) (Summary, error) {
	positions, err := s.storage.HoldingsSummary(ctx, accountID)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, p := range positions {
		avgPrice := 0.0
		if p.Units > 0 {
			avgPrice = p.Invested.Rupees() / p.Units
		}

		currentPrice := avgPrice
		if ticker, ok := market.TickerFor(p.AssetType); ok {
			if price, err := s.prices.Price(ctx, ticker); err == nil {
				currentPrice = price
			} else {
				slog.WarnContext(ctx, "Valuing position at purchase price",
					"asset_type", p.AssetType, "error", err)
			}
		}

		value := core.FromRupees(p.Units * currentPrice)
		returns := core.Money{Paise: value.Paise - p.Invested.Paise}
		returnPct := 0.0
		if p.Invested.Paise > 0 {
			returnPct = float64(returns.Paise) / float64(p.Invested.Paise) * 100
		}

		summary.Positions = append(summary.Positions, Position{
			AssetType:     p.AssetType,
			Invested:      p.Invested,
			Units:         p.Units,
			AvgUnitPrice:  avgPrice,
			CurrentPrice:  currentPrice,
			CurrentValue:  value,
			Returns:       returns,
			ReturnPercent: returnPct,
		})
		summary.TotalInvested.Paise += p.Invested.Paise
		summary.CurrentValue.Paise += value.Paise
	}

	summary.TotalReturn.Paise = summary.CurrentValue.Paise - summary.TotalInvested.Paise
	if summary.TotalInvested.Paise > 0 {
		summary.ReturnPercent = float64(summary.TotalReturn.Paise) / float64(summary.TotalInvested.Paise) * 100
	}
	return summary, nil
}

// minRoundOffTransactions is how many debits a month must hold before
// the round-off nudge is worth showing.
const minRoundOffTransactions = 5

// RoundOff estimates what rounding every payment up to the next ten
// rupees and investing the change would have earned this month.
type RoundOff struct {
	TransactionCount  int
	TotalRoundOff     core.Money
	PotentialEarnings core.Money
	AssetType         string
	WeeklyReturn      float64
	MonthlyReturn     float64
	Month             string
}

// RoundOffRecommendation returns nil when the account has too few
// payments this month to make the nudge meaningful.
func (s *Service) RoundOffRecommendation(ctx context.Context, accountID int64) (*RoundOff, error) {
	entries, err := s.storage.ListLedgerEntries(ctx, accountID, 500)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	count := 0
	var totalRoundOff int64
	for _, e := range entries {
		if e.Direction != core.DirectionDebit {
			continue
		}
		if e.CreatedAt.Month() != now.Month() || e.CreatedAt.Year() != now.Year() {
			continue
		}
		count++
		// Round up to the next whole ten rupees; exact multiples still
		// contribute a full ten.
		rem := e.Amount.Paise % 1000
		if rem == 0 {
			totalRoundOff += 1000
		} else {
			totalRoundOff += 1000 - rem
		}
	}
	if count < minRoundOffTransactions {
		return nil, nil
	}

	assetType, _, weeklyReturn := market.TopPerformerWeek()
	monthlyReturn := weeklyReturn * 4
	earnings := core.FromRupees(float64(totalRoundOff) / 100 * monthlyReturn / 100)

	return &RoundOff{
		TransactionCount:  count,
		TotalRoundOff:     core.Money{Paise: totalRoundOff},
		PotentialEarnings: earnings,
		AssetType:         assetType,
		WeeklyReturn:      weeklyReturn,
		MonthlyReturn:     monthlyReturn,
		Month:             now.Format("January 2006"),
	}, nil
}
