package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletmirror/internal/models"
)

type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) Price(ctx context.Context, token string) (decimal.Decimal, error) {
	p, ok := f.prices[token]
	if !ok {
		return decimal.Zero, errors.New("price unavailable")
	}
	return p, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func loggedBuy(ts int64, token, name, amount, priceUsd, volumeUsd string) models.TradeEvent {
	return models.TradeEvent{
		EventTime:  ts,
		FromSymbol: models.QuoteSymbol,
		FromAmount: dec(volumeUsd),
		ToSymbol:   "TOK",
		ToName:     name,
		ToAddress:  token,
		ToAmount:   dec(amount),
		PriceUsd:   dec(priceUsd),
		VolumeUsd:  dec(volumeUsd),
	}
}

func loggedSell(ts int64, token, name, amount, priceUsd, volumeUsd string) models.TradeEvent {
	return models.TradeEvent{
		EventTime:   ts,
		FromSymbol:  "TOK",
		FromName:    name,
		FromAddress: token,
		FromAmount:  dec(amount),
		ToSymbol:    models.QuoteSymbol,
		PriceUsd:    dec(priceUsd),
		VolumeUsd:   dec(volumeUsd),
	}
}

func newStatus(log *fakeLog, o *fakeOracle) *StatusService {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &StatusService{
		Log:    log,
		Oracle: o,
		Wallet: &fakeWallet{},
		Now:    func() time.Time { return fixed },
	}
}

func TestComputeStatus_HoldingRow(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		loggedBuy(1000, "tokA", "Token A", "0.2", "1.0", "0.2"),
		loggedSell(2000, "tokA", "Token A", "0.1", "2.0", "0.2"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		models.QuoteTokenAddress: dec("1.0"),
		"tokA":                   dec("3.0"),
	}}
	s := newStatus(log, o)

	view, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(view.Portfolio) != 1 {
		t.Fatalf("rows=%d want 1", len(view.Portfolio))
	}
	row := view.Portfolio[0]
	if row.ContractAddress != "tokA" || row.Name != "Token A" {
		t.Fatalf("identity: %+v", row)
	}
	if row.Status != "holding" {
		t.Fatalf("status=%q want holding", row.Status)
	}
	if row.TotalBoughtUsd != 0.2 || row.TotalSoldUsd != 0.2 {
		t.Fatalf("totals: %+v", row)
	}
	// amountHeld 0.1, avg buy $1, current $3 -> unrealized 0.2.
	if row.PnlUsd != 0.2 {
		t.Fatalf("pnl=%v want 0.2", row.PnlUsd)
	}
	if row.SolValue != "0.2" {
		t.Fatalf("solValue=%q want 0.2", row.SolValue)
	}
	if view.SimulatedBalance != 2 {
		t.Fatalf("balance=%v want 2", view.SimulatedBalance)
	}
	if view.LastUpdated != "2026-08-01T12:00:00Z" {
		t.Fatalf("lastUpdated=%q", view.LastUpdated)
	}
}

func TestComputeStatus_SoldRowUsesRealizedPnl(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		loggedBuy(1000, "tokA", "Token A", "0.2", "1.0", "0.2"),
		loggedSell(2000, "tokA", "Token A", "0.2", "2.0", "0.4"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		models.QuoteTokenAddress: dec("2.0"),
		"tokA":                   dec("9.0"),
	}}
	s := newStatus(log, o)

	view, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	row := view.Portfolio[0]
	if row.Status != "sold" {
		t.Fatalf("status=%q want sold", row.Status)
	}
	// Realized: (2 - 1) * 0.2. The $9 current price must not leak in.
	if row.PnlUsd != 0.2 {
		t.Fatalf("pnl=%v want 0.2", row.PnlUsd)
	}
	if row.SolValue != "0.1" {
		t.Fatalf("solValue=%q want 0.1", row.SolValue)
	}
	// Held from first buy to last sell, not to now.
	if row.HeldTime != "0d 0h" {
		t.Fatalf("heldTime=%q want 0d 0h", row.HeldTime)
	}
}

func TestComputeStatus_Deterministic(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		loggedBuy(1000, "tokA", "Token A", "0.2", "1.0", "0.2"),
		loggedBuy(1500, "tokB", "Token B", "5", "0.5", "2.5"),
		loggedSell(2000, "tokA", "Token A", "0.1", "2.0", "0.2"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		models.QuoteTokenAddress: dec("1.0"),
		"tokA":                   dec("3.0"),
		"tokB":                   dec("0.75"),
	}}
	s := newStatus(log, o)

	v1, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	v2, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(v1.Portfolio, v2.Portfolio) {
		t.Fatalf("portfolio drifted between identical reads:\n%+v\n%+v", v1.Portfolio, v2.Portfolio)
	}
	if v1.Portfolio[0].ContractAddress != "tokA" || v1.Portfolio[1].ContractAddress != "tokB" {
		t.Fatalf("order not first-appearance: %+v", v1.Portfolio)
	}
}

func TestComputeStatus_PriceFallsBackToLastTrade(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		loggedBuy(1000, "tokA", "Token A", "0.2", "1.0", "0.2"),
		loggedBuy(2000, "tokA", "Token A", "0.1", "4.0", "0.4"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		models.QuoteTokenAddress: dec("1.0"),
	}}
	s := newStatus(log, o)

	view, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	row := view.Portfolio[0]
	// avg buy = 0.6/0.3 = 2; fallback price is the latest trade's $4.
	// unrealized = (4 - 2) * 0.3 = 0.6
	if row.PnlUsd != 0.6 {
		t.Fatalf("pnl=%v want 0.6", row.PnlUsd)
	}
}

func TestComputeStatus_QuotePriceUnavailableMarksNA(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		loggedBuy(1000, "tokA", "Token A", "0.2", "1.0", "0.2"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		"tokA": dec("3.0"),
	}}
	s := newStatus(log, o)

	view, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("one missing price must not fail the response: %v", err)
	}
	if view.Portfolio[0].SolValue != "N/A" {
		t.Fatalf("solValue=%q want N/A", view.Portfolio[0].SolValue)
	}
}

func TestComputeStatus_SkipsNeverBoughtGroup(t *testing.T) {
	log := &fakeLog{trades: []models.TradeEvent{
		// Zero-amount grouping artifact: no usable buy, nothing ever sold.
		loggedBuy(1000, "tokX", "Artifact", "0", "1.0", "0"),
		loggedBuy(2000, "tokA", "Token A", "0.2", "1.0", "0.2"),
	}}
	o := &fakeOracle{prices: map[string]decimal.Decimal{
		models.QuoteTokenAddress: dec("1.0"),
		"tokA":                   dec("1.0"),
	}}
	s := newStatus(log, o)

	view, err := s.ComputeStatus(context.Background())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(view.Portfolio) != 1 || view.Portfolio[0].ContractAddress != "tokA" {
		t.Fatalf("artifact group not skipped: %+v", view.Portfolio)
	}
}

func TestFormatHeldTime(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(3*24*time.Hour + 7*time.Hour + 30*time.Minute)
	if got := formatHeldTime(from, until); got != "3d 7h" {
		t.Fatalf("got %q want 3d 7h", got)
	}
	if got := formatHeldTime(from, from); got != "0d 0h" {
		t.Fatalf("got %q want 0d 0h", got)
	}
}
