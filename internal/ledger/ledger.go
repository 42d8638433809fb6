package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletmirror/internal/config"
	"walletmirror/internal/models"
)

// ErrInvariant marks a state transition that the sizing rules should make
// impossible. The wallet refuses to advance instead of persisting a corrupt
// balance or holding.
var ErrInvariant = errors.New("ledger invariant violated")

// QuotePriceFunc resolves the quote currency's own USD price for sell
// valuation. Implementations must not panic; an error triggers the degraded
// divide-by-one fallback.
type QuotePriceFunc func(ctx context.Context) (decimal.Decimal, error)

// Holding is one token position of the simulated wallet. Entries are never
// deleted: a fully sold position stays at zero amount for history.
type Holding struct {
	Name           string
	Amount         decimal.Decimal
	AvgBuyPriceUsd decimal.Decimal
	BuyTime        int64
	TotalBoughtUsd decimal.Decimal
	TotalSoldUsd   decimal.Decimal
	RealizedPnlUsd decimal.Decimal
	SoldTime       *int64
}

// Wallet is the in-memory simulated wallet. Apply is meant for a single
// invoker (the ingestion tick); the mutex exists so Balance can be read
// concurrently by the status path, not to make Apply re-entrant.
type Wallet struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	holdings map[string]*Holding

	buyFraction  decimal.Decimal
	sellFraction decimal.Decimal
	quotePrice   QuotePriceFunc
	logger       *zap.Logger
}

func NewWallet(cfg config.SimConfig, quotePrice QuotePriceFunc, logger *zap.Logger) *Wallet {
	buy := decimal.NewFromFloat(cfg.BuyFraction)
	if buy.LessThanOrEqual(decimal.Zero) {
		buy = decimal.NewFromFloat(0.10)
	}
	sell := decimal.NewFromFloat(cfg.SellFraction)
	if sell.LessThanOrEqual(decimal.Zero) {
		sell = decimal.NewFromFloat(0.50)
	}
	return &Wallet{
		balance:      decimal.NewFromFloat(cfg.InitialBalance),
		holdings:     map[string]*Holding{},
		buyFraction:  buy,
		sellFraction: sell,
		quotePrice:   quotePrice,
		logger:       logger,
	}
}

// Balance returns the current simulated quote-currency balance.
func (w *Wallet) Balance() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Holding returns a copy of the position for a token address.
func (w *Wallet) Holding(tokenAddress string) (Holding, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.holdings[tokenAddress]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Apply replays one trade of the tracked wallet against the simulated one.
// It must be called exactly once per event, in ascending time order.
func (w *Wallet) Apply(ctx context.Context, ev models.TradeEvent) error {
	switch ev.Direction() {
	case models.DirectionBuy:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.applyBuy(ev)
	case models.DirectionSell:
		if h, ok := w.Holding(ev.FromAddress); !ok || h.Amount.LessThanOrEqual(decimal.Zero) {
			// The tracked wallet sold a token we never bought; the simulated
			// wallet never opens a short position.
			return nil
		}
		// The quote lookup can retry with backoff for seconds; it runs before
		// the lock so Balance readers never wait on it.
		quoteUsd := w.resolveQuoteUsd(ctx, ev)
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.applySell(ev, quoteUsd)
	default:
		// Neither leg (or both legs) is the quote currency. Logged trades of
		// this shape never move the simulated wallet.
		return nil
	}
}

// resolveQuoteUsd returns the quote currency's USD price for sell valuation.
// When the price cannot be resolved the sale is credited at a 1 USD/SOL rate.
// This knowingly misprices the credit; the alternative would stall ingestion
// on a price outage.
func (w *Wallet) resolveQuoteUsd(ctx context.Context, ev models.TradeEvent) decimal.Decimal {
	if w.quotePrice != nil {
		if p, err := w.quotePrice(ctx); err == nil && p.IsPositive() {
			return p
		}
		if w.logger != nil {
			w.logger.Warn("quote price unavailable, crediting sale at 1:1",
				zap.Int64("event_time", ev.EventTime),
			)
		}
	}
	return decimal.NewFromInt(1)
}

func (w *Wallet) applyBuy(ev models.TradeEvent) error {
	if ev.PriceUsd.LessThanOrEqual(decimal.Zero) {
		if w.logger != nil {
			w.logger.Warn("skipping buy with non-positive price",
				zap.Int64("event_time", ev.EventTime),
				zap.String("token", ev.ToAddress),
			)
		}
		return nil
	}

	sizing := w.balance.Mul(w.buyFraction)
	if w.balance.LessThan(sizing) {
		// Unreachable while buyFraction <= 1, kept as a guard against a
		// misconfigured fraction draining the balance negative.
		if w.logger != nil {
			w.logger.Warn("insufficient balance for buy sizing",
				zap.String("balance", w.balance.String()),
				zap.String("sizing", sizing.String()),
			)
		}
		return nil
	}

	amountBought := sizing.Div(ev.PriceUsd)
	cost := amountBought.Mul(ev.PriceUsd)

	h, ok := w.holdings[ev.ToAddress]
	if !ok {
		h = &Holding{
			Name:    ev.ToName,
			BuyTime: ev.EventTime,
		}
		w.holdings[ev.ToAddress] = h
	}
	// Volume-weighted average against the running cost basis. A reopened
	// position blends against a zero amount, so the average collapses to
	// the new purchase's own price.
	totalCost := h.AvgBuyPriceUsd.Mul(h.Amount).Add(cost)
	h.Amount = h.Amount.Add(amountBought)
	h.AvgBuyPriceUsd = totalCost.Div(h.Amount)
	h.TotalBoughtUsd = h.TotalBoughtUsd.Add(cost)
	h.SoldTime = nil

	w.balance = w.balance.Sub(sizing)
	if w.balance.IsNegative() {
		return fmt.Errorf("%w: balance %s below zero after buy at %d",
			ErrInvariant, w.balance.String(), ev.EventTime)
	}

	if w.logger != nil {
		w.logger.Info("mirrored buy",
			zap.String("token", ev.ToAddress),
			zap.String("name", ev.ToName),
			zap.String("spent_sol", sizing.String()),
			zap.String("amount", amountBought.String()),
			zap.String("sol_balance", w.balance.String()),
		)
	}
	return nil
}

func (w *Wallet) applySell(ev models.TradeEvent, quoteUsd decimal.Decimal) error {
	h, ok := w.holdings[ev.FromAddress]
	if !ok || h.Amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	sellAmount := h.Amount.Mul(w.sellFraction)
	sellValueSol := sellAmount.Mul(ev.PriceUsd).Div(quoteUsd)
	pnl := ev.PriceUsd.Sub(h.AvgBuyPriceUsd).Mul(sellAmount)

	h.Amount = h.Amount.Sub(sellAmount)
	h.TotalSoldUsd = h.TotalSoldUsd.Add(sellAmount.Mul(ev.PriceUsd))
	h.RealizedPnlUsd = h.RealizedPnlUsd.Add(pnl)
	if h.Amount.IsNegative() {
		return fmt.Errorf("%w: holding %s amount %s below zero after sell at %d",
			ErrInvariant, ev.FromAddress, h.Amount.String(), ev.EventTime)
	}
	if h.Amount.LessThanOrEqual(decimal.Zero) {
		h.Amount = decimal.Zero
		ts := ev.EventTime
		h.SoldTime = &ts
	}
	w.balance = w.balance.Add(sellValueSol)

	if w.logger != nil {
		w.logger.Info("mirrored sell",
			zap.String("token", ev.FromAddress),
			zap.String("name", ev.FromName),
			zap.String("amount", sellAmount.String()),
			zap.String("credited_sol", sellValueSol.String()),
			zap.String("pnl_usd", pnl.String()),
			zap.String("sol_balance", w.balance.String()),
		)
	}
	return nil
}
