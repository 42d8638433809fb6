package gormrepository

import (
	"context"

	"gorm.io/gorm"

	"walletmirror/internal/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AppendTrades(ctx context.Context, items []models.TradeEvent) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	// No ON CONFLICT clause on purpose: the unique index on event_time turns
	// a replayed append into an error, and the tick aborts before the ledger
	// sees the batch a second time.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
}

func (s *Store) ListTradesSince(ctx context.Context, sinceMs int64) ([]models.TradeEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeEvent{})
	if sinceMs > 0 {
		query = query.Where("event_time >= ?", sinceMs)
	}
	var items []models.TradeEvent
	if err := query.Order("event_time asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LatestTradeTime(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var latest *int64
	err := s.db.WithContext(ctx).
		Model(&models.TradeEvent{}).
		Select("MAX(event_time)").
		Scan(&latest).Error
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}
