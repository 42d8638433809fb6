package repository

import (
	"context"

	"walletmirror/internal/models"
)

// TradeLog is the durable append+query log of observed trades. The engine
// depends only on time-range filtering, so the backend is swappable.
//
// AppendTrades must be all-or-nothing: either every event in the batch is
// persisted or none is. A batch containing an already-logged event time must
// fail rather than partially apply, so the ingestion tick can abort before
// touching the in-memory ledger.
type TradeLog interface {
	AppendTrades(ctx context.Context, items []models.TradeEvent) error

	// ListTradesSince returns logged trades with event_time >= sinceMs in
	// ascending event-time order. sinceMs <= 0 returns the whole log.
	ListTradesSince(ctx context.Context, sinceMs int64) ([]models.TradeEvent, error)

	// LatestTradeTime returns the max event_time in the log, 0 when empty.
	LatestTradeTime(ctx context.Context) (int64, error)
}
