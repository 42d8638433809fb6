package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"walletmirror/internal/models"
	"walletmirror/internal/repository"
)

// TradeSource fetches the tracked wallet's trades newer than a floor.
type TradeSource interface {
	TradesSince(ctx context.Context, wallet string, minTimestampMs int64) ([]models.TradeEvent, error)
}

// WalletLedger is the single-writer simulated wallet the tick replays into.
type WalletLedger interface {
	Apply(ctx context.Context, ev models.TradeEvent) error
}

// MirrorService is the ingestion pipeline: fetch new trades above the
// watermark, persist them, replay them into the ledger, then advance the
// watermark. One tick runs at a time; an overlapping invocation is skipped.
type MirrorService struct {
	Source            TradeSource
	Log               repository.TradeLog
	Wallet            WalletLedger
	Logger            *zap.Logger
	TargetWallet      string
	TickTimeout       time.Duration
	ColdStartLookback time.Duration

	ticking   sync.Mutex
	watermark atomic.Int64
}

// Bootstrap restores the watermark after a restart. The log's newest event
// is the boundary below which everything was already processed; an empty log
// starts from now minus the configured cold-start lookback.
func (s *MirrorService) Bootstrap(ctx context.Context) error {
	latest, err := s.Log.LatestTradeTime(ctx)
	if err != nil {
		return fmt.Errorf("restore watermark: %w", err)
	}
	if latest == 0 {
		latest = time.Now().Add(-s.ColdStartLookback).UnixMilli()
	}
	s.watermark.Store(latest)
	if s.Logger != nil {
		s.Logger.Info("watermark initialized", zap.Int64("watermark_ms", latest))
	}
	return nil
}

// Watermark returns the timestamp boundary below which all trades are
// considered processed. It never decreases.
func (s *MirrorService) Watermark() int64 {
	return s.watermark.Load()
}

func (s *MirrorService) Tick(ctx context.Context) error {
	if !s.ticking.TryLock() {
		if s.Logger != nil {
			s.Logger.Warn("ingestion tick already in flight, skipping")
		}
		return nil
	}
	defer s.ticking.Unlock()

	if s.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TickTimeout)
		defer cancel()
	}

	floor := s.watermark.Load()
	fetched, err := s.Source.TradesSince(ctx, s.TargetWallet, floor)
	if err != nil {
		// Nothing has been applied or persisted; the next scheduled tick
		// retries from the same watermark.
		return fmt.Errorf("fetch trades: %w", err)
	}

	// The source filters too, but the strict comparison here is what
	// guarantees the boundary event is never replayed.
	batch := fetched[:0]
	for _, ev := range fetched {
		if ev.EventTime > floor {
			batch = append(batch, ev)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	// Pagination order is not monotonic across pages.
	sort.Slice(batch, func(i, j int) bool { return batch[i].EventTime < batch[j].EventTime })

	// Durable append comes first: if it fails the ledger stays untouched and
	// the log never diverges from applied state.
	if err := s.Log.AppendTrades(ctx, batch); err != nil {
		return fmt.Errorf("append trades: %w", err)
	}

	for _, ev := range batch {
		if err := s.Wallet.Apply(ctx, ev); err != nil {
			// Invariant violations are programming errors. The watermark is
			// left where it was so state never silently advances past a
			// corrupt application.
			return fmt.Errorf("apply trade at %d: %w", ev.EventTime, err)
		}
	}

	newMark := batch[len(batch)-1].EventTime
	if newMark > floor {
		s.watermark.Store(newMark)
	}
	if s.Logger != nil {
		s.Logger.Info("ingestion tick complete",
			zap.Int("trades", len(batch)),
			zap.Int64("watermark_ms", s.watermark.Load()),
		)
	}
	return nil
}
