package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletmirror/internal/models"
	"walletmirror/internal/repository"
)

// PriceOracle resolves current token prices for valuation.
type PriceOracle interface {
	Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

// BalanceSource exposes the live simulated balance. The balance is the one
// piece of state that cannot be recomputed from the log alone (it depends on
// every historical sizing decision), so the ledger stays authoritative for it.
type BalanceSource interface {
	Balance() decimal.Decimal
}

// TokenStatus is one portfolio row of the status endpoint.
type TokenStatus struct {
	ContractAddress string  `json:"contractAddress"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	TotalBoughtUsd  float64 `json:"totalBoughtUsd"`
	TotalSoldUsd    float64 `json:"totalSoldUsd"`
	PnlUsd          float64 `json:"pnlUsd"`
	SolValue        string  `json:"solValue"`
	HeldTime        string  `json:"heldTime"`
}

type PortfolioView struct {
	Portfolio        []TokenStatus `json:"portfolio"`
	SimulatedBalance float64       `json:"simulatedBalance"`
	LastUpdated      string        `json:"lastUpdated"`
}

// StatusService recomputes the portfolio view from the durable trade log and
// live prices on every call. It deliberately ignores the in-memory holdings:
// deriving from the log keeps the read path correct across restarts.
type StatusService struct {
	Log      repository.TradeLog
	Oracle   PriceOracle
	Wallet   BalanceSource
	Logger   *zap.Logger
	Lookback time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

type tokenGroup struct {
	address string
	trades  []models.TradeEvent
}

func (s *StatusService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *StatusService) ComputeStatus(ctx context.Context) (PortfolioView, error) {
	since := int64(0)
	if s.Lookback > 0 {
		since = s.now().Add(-s.Lookback).UnixMilli()
	}
	trades, err := s.Log.ListTradesSince(ctx, since)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("read trade log: %w", err)
	}

	solPrice, solErr := s.Oracle.Price(ctx, models.QuoteTokenAddress)
	if solErr != nil && s.Logger != nil {
		s.Logger.Warn("quote price unavailable for status", zap.Error(solErr))
	}

	view := PortfolioView{
		Portfolio:   []TokenStatus{},
		LastUpdated: s.now().UTC().Format(time.RFC3339),
	}
	if s.Wallet != nil {
		view.SimulatedBalance = s.Wallet.Balance().Round(4).InexactFloat64()
	}

	for _, group := range groupByToken(trades) {
		entry, ok := s.aggregate(ctx, group, solPrice, solErr == nil)
		if !ok {
			continue
		}
		view.Portfolio = append(view.Portfolio, entry)
	}
	return view, nil
}

// groupByToken buckets log entries by the non-quote token, preserving first
// appearance order so the response is stable between calls.
func groupByToken(trades []models.TradeEvent) []tokenGroup {
	index := map[string]int{}
	var groups []tokenGroup
	for _, t := range trades {
		addr := t.TokenAddress()
		if addr == "" {
			continue
		}
		i, ok := index[addr]
		if !ok {
			i = len(groups)
			index[addr] = i
			groups = append(groups, tokenGroup{address: addr})
		}
		groups[i].trades = append(groups[i].trades, t)
	}
	return groups
}

func (s *StatusService) aggregate(ctx context.Context, g tokenGroup, solPrice decimal.Decimal, haveSolPrice bool) (TokenStatus, bool) {
	var (
		totalBought  decimal.Decimal
		totalSold    decimal.Decimal
		boughtAmount decimal.Decimal
		soldAmount   decimal.Decimal
		firstBuyTime int64
		lastSellTime int64
	)
	for _, t := range g.trades {
		switch t.Direction() {
		case models.DirectionBuy:
			totalBought = totalBought.Add(t.VolumeUsd)
			boughtAmount = boughtAmount.Add(t.ToAmount)
			if firstBuyTime == 0 || t.EventTime < firstBuyTime {
				firstBuyTime = t.EventTime
			}
		case models.DirectionSell:
			totalSold = totalSold.Add(t.VolumeUsd)
			soldAmount = soldAmount.Add(t.FromAmount)
			if t.EventTime > lastSellTime {
				lastSellTime = t.EventTime
			}
		}
	}

	amountHeld := boughtAmount.Sub(soldAmount)
	if amountHeld.LessThanOrEqual(decimal.Zero) && totalSold.IsZero() {
		// Grouping artifact: the token was never actually bought.
		return TokenStatus{}, false
	}

	avgBuyPrice := decimal.Zero
	if boughtAmount.IsPositive() {
		avgBuyPrice = totalBought.Div(boughtAmount)
	}

	realizedPnl := decimal.Zero
	for _, t := range g.trades {
		if t.Direction() == models.DirectionSell {
			realizedPnl = realizedPnl.Add(t.PriceUsd.Sub(avgBuyPrice).Mul(t.FromAmount))
		}
	}

	currentPrice, err := s.Oracle.Price(ctx, g.address)
	if err != nil {
		// Valuation falls back to the most recent logged trade's price
		// rather than dropping the row.
		currentPrice = g.trades[len(g.trades)-1].PriceUsd
	}

	unrealizedPnl := decimal.Zero
	sold := amountHeld.LessThanOrEqual(decimal.Zero)
	if !sold {
		unrealizedPnl = currentPrice.Sub(avgBuyPrice).Mul(amountHeld)
	}

	pnl := unrealizedPnl
	status := "holding"
	if sold {
		pnl = realizedPnl
		status = "sold"
	}

	solValue := "N/A"
	if haveSolPrice && solPrice.IsPositive() {
		solValue = pnl.Div(solPrice).Round(4).String()
	}

	heldFrom := firstBuyTime
	if heldFrom == 0 {
		heldFrom = g.trades[0].EventTime
	}
	heldUntil := s.now()
	if sold && lastSellTime > 0 {
		heldUntil = time.UnixMilli(lastSellTime)
	}

	return TokenStatus{
		ContractAddress: g.address,
		Name:            tokenName(g.trades),
		Status:          status,
		TotalBoughtUsd:  totalBought.Round(2).InexactFloat64(),
		TotalSoldUsd:    totalSold.Round(2).InexactFloat64(),
		PnlUsd:          pnl.Round(2).InexactFloat64(),
		SolValue:        solValue,
		HeldTime:        formatHeldTime(time.UnixMilli(heldFrom), heldUntil),
	}, true
}

func tokenName(trades []models.TradeEvent) string {
	for _, t := range trades {
		if name := t.TokenName(); name != "" {
			return name
		}
	}
	return ""
}

// formatHeldTime renders a holding duration as whole days plus remaining
// hours, e.g. "3d 7h".
func formatHeldTime(from, until time.Time) string {
	d := until.Sub(from)
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
