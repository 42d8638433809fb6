package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// QuoteSymbol is the reference asset all buy/sell direction and valuation is
// defined against.
const QuoteSymbol = "SOL"

// QuoteTokenAddress is the wrapped SOL mint, used for quote-currency price
// lookups.
const QuoteTokenAddress = "So11111111111111111111111111111111111111112"

// Direction classifies a trade relative to the quote currency.
type Direction int

const (
	// DirectionIgnored covers trades where neither or both legs are the
	// quote currency. They are logged but never move the simulated wallet.
	DirectionIgnored Direction = iota
	DirectionBuy
	DirectionSell
)

// TradeEvent is one observed swap of the tracked wallet, persisted
// append-only. EventTime doubles as the event identity: the unique index
// makes a replayed append fail instead of double-counting.
type TradeEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	EventTime int64 `gorm:"not null;uniqueIndex"`

	FromSymbol  string          `gorm:"type:varchar(20);not null"`
	FromName    string          `gorm:"type:varchar(120)"`
	FromAddress string          `gorm:"type:varchar(64);not null;index"`
	FromAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	ToSymbol  string          `gorm:"type:varchar(20);not null"`
	ToName    string          `gorm:"type:varchar(120)"`
	ToAddress string          `gorm:"type:varchar(64);not null;index"`
	ToAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	PriceUsd  decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	VolumeUsd decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Raw datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradeEvent) TableName() string {
	return "trade_events"
}

func (t TradeEvent) Direction() Direction {
	fromQuote := t.FromSymbol == QuoteSymbol
	toQuote := t.ToSymbol == QuoteSymbol
	switch {
	case fromQuote && !toQuote:
		return DirectionBuy
	case toQuote && !fromQuote:
		return DirectionSell
	default:
		return DirectionIgnored
	}
}

// TokenAddress returns the non-quote side of the trade, i.e. the token the
// simulated wallet holds a position in. Empty for ignored trades.
func (t TradeEvent) TokenAddress() string {
	switch t.Direction() {
	case DirectionBuy:
		return t.ToAddress
	case DirectionSell:
		return t.FromAddress
	default:
		return ""
	}
}

// TokenName mirrors TokenAddress for the display name.
func (t TradeEvent) TokenName() string {
	switch t.Direction() {
	case DirectionBuy:
		return t.ToName
	case DirectionSell:
		return t.FromName
	default:
		return ""
	}
}
