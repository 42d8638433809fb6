package solanatracker

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// RateLimited reports whether the failure is retryable with backoff.
func (e *APIError) RateLimited() bool {
	return e.Status == 429
}

type tradeToken struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type tradeLeg struct {
	Token   tradeToken      `json:"token"`
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

type usdValue struct {
	Usd decimal.Decimal `json:"usd"`
}

// trade is the consumed subset of one Solana Tracker trade record.
type trade struct {
	Time   int64    `json:"time"`
	From   tradeLeg `json:"from"`
	To     tradeLeg `json:"to"`
	Price  usdValue `json:"price"`
	Volume usdValue `json:"volume"`
}

type tradesPage struct {
	Trades      []json.RawMessage `json:"trades"`
	HasNextPage bool              `json:"hasNextPage"`
	NextCursor  string            `json:"nextCursor"`
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
}
