package portfolio

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"voicepay/internal/core"
	"voicepay/internal/market"
	"voicepay/internal/storage"
)

type fixedPrice struct {
	price float64
	err   error
}

func (f fixedPrice) Price(context.Context, string) (float64, error) {
	return f.price, f.err
}

func newTestService(t *testing.T, prices market.PriceSource) (*Service, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, prices), repo
}

func TestInvest(t *testing.T) {
	ctx := context.Background()

	t.Run("buys units at the current price", func(t *testing.T) {
		svc, repo := newTestService(t, fixedPrice{price: 80})
		id, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 100000}})

		res, err := svc.Invest(ctx, id, "gold", core.Money{Paise: 40000})
		if err != nil {
			t.Fatalf("Invest() error = %v", err)
		}
		if res.NewBalance.Paise != 60000 {
			t.Errorf("new balance = %d, want 60000", res.NewBalance.Paise)
		}
		if math.Abs(res.Units-5.0) > 1e-9 {
			t.Errorf("units = %v, want 5.0 (400 rupees at 80)", res.Units)
		}
	})

	t.Run("hard stop without a price", func(t *testing.T) {
		svc, repo := newTestService(t, fixedPrice{err: core.ErrPriceUnavailable})
		id, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 100000}})

		_, err := svc.Invest(ctx, id, "gold", core.Money{Paise: 40000})
		if !errors.Is(err, core.ErrPriceUnavailable) {
			t.Fatalf("Invest() error = %v, want ErrPriceUnavailable", err)
		}
		account, _ := repo.GetAccount(ctx, id)
		if account.Balance.Paise != 100000 {
			t.Errorf("balance after failed invest = %d, want untouched", account.Balance.Paise)
		}
		holdings, _ := repo.ListHoldings(ctx, id)
		if len(holdings) != 0 {
			t.Errorf("holdings after failed invest = %d, want 0", len(holdings))
		}
	})

	t.Run("unknown asset", func(t *testing.T) {
		svc, repo := newTestService(t, fixedPrice{price: 80})
		id, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 100000}})

		_, err := svc.Invest(ctx, id, "crypto", core.Money{Paise: 40000})
		if !errors.Is(err, core.ErrUnknownAsset) {
			t.Errorf("Invest(crypto) error = %v, want ErrUnknownAsset", err)
		}
	})
}

func TestPortfolio(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, fixedPrice{price: 100})
	id, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 200000}})

	// Two gold buys at a fixed price of 100: 400 + 600 rupees = 10 units.
	if _, err := svc.Invest(ctx, id, "gold", core.Money{Paise: 40000}); err != nil {
		t.Fatalf("Invest() error = %v", err)
	}
	if _, err := svc.Invest(ctx, id, "gold", core.Money{Paise: 60000}); err != nil {
		t.Fatalf("Invest() error = %v", err)
	}

	t.Run("valued at current price", func(t *testing.T) {
		// Price has risen to 110 by valuation time.
		summary, err := NewService(repo, fixedPrice{price: 110}).Portfolio(ctx, id)
		if err != nil {
			t.Fatalf("Portfolio() error = %v", err)
		}
		if len(summary.Positions) != 1 {
			t.Fatalf("positions = %d, want 1", len(summary.Positions))
		}
		p := summary.Positions[0]
		if p.Invested.Paise != 100000 {
			t.Errorf("invested = %d, want 100000", p.Invested.Paise)
		}
		if p.CurrentValue.Paise != 110000 {
			t.Errorf("current value = %d paise, want 110000 (10 units at 110)", p.CurrentValue.Paise)
		}
		if math.Abs(p.ReturnPercent-10.0) > 1e-9 {
			t.Errorf("return = %v%%, want 10%%", p.ReturnPercent)
		}
		if summary.TotalReturn.Paise != 10000 {
			t.Errorf("total return = %d, want 10000", summary.TotalReturn.Paise)
		}
	})

	t.Run("falls back to purchase price", func(t *testing.T) {
		summary, err := NewService(repo, fixedPrice{err: core.ErrPriceUnavailable}).Portfolio(ctx, id)
		if err != nil {
			t.Fatalf("Portfolio() error = %v", err)
		}
		p := summary.Positions[0]
		if p.CurrentValue.Paise != p.Invested.Paise {
			t.Errorf("value without market data = %d, want invested %d", p.CurrentValue.Paise, p.Invested.Paise)
		}
		if summary.ReturnPercent != 0 {
			t.Errorf("return without market data = %v%%, want 0", summary.ReturnPercent)
		}
	})

	t.Run("empty portfolio", func(t *testing.T) {
		other, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})
		summary, err := svc.Portfolio(ctx, other)
		if err != nil {
			t.Fatalf("Portfolio(empty) error = %v", err)
		}
		if len(summary.Positions) != 0 || summary.TotalInvested.Paise != 0 {
			t.Errorf("empty portfolio = %+v, want zero totals", summary)
		}
	})
}

func TestRoundOffRecommendation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, fixedPrice{price: 100})
	senderID, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 10000000}})
	recipientID, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

	t.Run("too few payments", func(t *testing.T) {
		rec, err := svc.RoundOffRecommendation(ctx, senderID)
		if err != nil {
			t.Fatalf("RoundOffRecommendation() error = %v", err)
		}
		if rec != nil {
			t.Errorf("recommendation = %+v, want nil for quiet month", rec)
		}
	})

	t.Run("five payments produce a nudge", func(t *testing.T) {
		// 123.00 rupees leaves 7 to the next ten; paid five times.
		for i := 0; i < 5; i++ {
			if _, err := repo.Transfer(ctx, senderID, recipientID, core.Money{Paise: 12300}); err != nil {
				t.Fatalf("Transfer() error = %v", err)
			}
		}
		rec, err := svc.RoundOffRecommendation(ctx, senderID)
		if err != nil {
			t.Fatalf("RoundOffRecommendation() error = %v", err)
		}
		if rec == nil {
			t.Fatal("recommendation = nil, want a nudge after five payments")
		}
		if rec.TransactionCount != 5 {
			t.Errorf("transaction count = %d, want 5", rec.TransactionCount)
		}
		if rec.TotalRoundOff.Paise != 5*700 {
			t.Errorf("total round-off = %d paise, want 3500", rec.TotalRoundOff.Paise)
		}
		if rec.AssetType != "gold" {
			t.Errorf("recommended asset = %q, want the top weekly performer gold", rec.AssetType)
		}
	})
}
