package http

import (
	"net/http"
	"strconv"
	"strings"

	"voicepay/internal/core"
	"voicepay/internal/market"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	account, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": account.ID,
		"balance":    account.Balance.Rupees(),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := s.storage.ListLedgerEntries(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var totalSpent int64
	transactions := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if e.Direction == core.DirectionDebit {
			totalSpent += e.Amount.Paise
		}
		transactions = append(transactions, map[string]any{
			"id":           e.ID,
			"direction":    string(e.Direction),
			"amount":       e.Amount.Rupees(),
			"description":  e.Description,
			"counterparty": e.Counterparty,
			"created_at":   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
		"total_spent":  core.Money{Paise: totalSpent}.Rupees(),
	})
}

// handleInvestmentAnalysis reports this month's round-off potential plus
// the best-performing asset of the week.
func (s *Server) handleInvestmentAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	assetType, ticker, weeklyReturn := market.TopPerformerWeek()
	resp := map[string]any{
		"top_performer": map[string]any{
			"asset_type":    assetType,
			"ticker":        ticker,
			"weekly_return": weeklyReturn,
		},
	}

	rec, err := s.portfolio.RoundOffRecommendation(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rec != nil {
		resp["round_off"] = map[string]any{
			"transaction_count":  rec.TransactionCount,
			"total_round_off":    rec.TotalRoundOff.Rupees(),
			"potential_earnings": rec.PotentialEarnings.Rupees(),
			"asset_type":         rec.AssetType,
			"weekly_return":      rec.WeeklyReturn,
			"monthly_return":     rec.MonthlyReturn,
			"month":              rec.Month,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	summary, err := s.portfolio.Portfolio(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	positions := make([]map[string]any, 0, len(summary.Positions))
	for _, p := range summary.Positions {
		positions = append(positions, map[string]any{
			"asset_type":     p.AssetType,
			"invested":       p.Invested.Rupees(),
			"units":          p.Units,
			"avg_unit_price": p.AvgUnitPrice,
			"current_price":  p.CurrentPrice,
			"current_value":  p.CurrentValue.Rupees(),
			"returns":        p.Returns.Rupees(),
			"return_percent": p.ReturnPercent,
		})
	}

	resp := map[string]any{
		"positions":      positions,
		"total_invested": summary.TotalInvested.Rupees(),
		"current_value":  summary.CurrentValue.Rupees(),
		"total_return":   summary.TotalReturn.Rupees(),
		"return_percent": summary.ReturnPercent,
	}

	if rec, err := s.portfolio.RoundOffRecommendation(r.Context(), id); err == nil && rec != nil {
		resp["round_off"] = map[string]any{
			"transaction_count":  rec.TransactionCount,
			"total_round_off":    rec.TotalRoundOff.Rupees(),
			"potential_earnings": rec.PotentialEarnings.Rupees(),
			"asset_type":         rec.AssetType,
			"weekly_return":      rec.WeeklyReturn,
			"monthly_return":     rec.MonthlyReturn,
			"month":              rec.Month,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
