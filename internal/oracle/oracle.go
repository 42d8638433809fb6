package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletmirror/internal/config"
)

// ErrUnavailable is returned when a price could not be fetched within the
// retry budget and no earlier value is cached. Callers must degrade, never
// fail wholesale.
var ErrUnavailable = errors.New("price unavailable")

// PriceSource is the upstream quote endpoint. A rate-limit failure should
// implement RateLimited() bool so the oracle can back off instead of giving
// up.
type PriceSource interface {
	Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

type rateLimiter interface {
	RateLimited() bool
}

func isRateLimited(err error) bool {
	var rl rateLimiter
	return errors.As(err, &rl) && rl.RateLimited()
}

type cacheEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Oracle caches token prices for a TTL and retries rate-limited fetches with
// exponential backoff. The cache is shared mutable state; concurrent misses
// for the same token may both fetch and the last writer wins, which is fine
// for advisory valuation data.
type Oracle struct {
	source      PriceSource
	logger      *zap.Logger
	ttl         time.Duration
	maxAttempts int
	backoffBase time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func New(source PriceSource, cfg config.OracleConfig, logger *zap.Logger) *Oracle {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	return &Oracle{
		source:      source,
		logger:      logger,
		ttl:         ttl,
		maxAttempts: attempts,
		backoffBase: base,
		now:         time.Now,
		sleep:       sleepCtx,
		cache:       map[string]cacheEntry{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Price returns the token's USD price, from cache when fresh. On a cache miss
// it fetches with up to maxAttempts tries, sleeping backoffBase, 2x, 4x...
// between rate-limited attempts; any other failure is terminal for the call.
// When the fetch budget is exhausted but an expired entry exists, that last
// known value is served instead of failing.
func (o *Oracle) Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	if entry, ok := o.lookup(tokenAddress); ok && o.now().Sub(entry.fetchedAt) < o.ttl {
		return entry.price, nil
	}

	backoff := o.backoffBase
	var lastErr error
	for attempt := 1; ; attempt++ {
		price, err := o.source.Price(ctx, tokenAddress)
		if err == nil {
			o.store(tokenAddress, price)
			return price, nil
		}
		lastErr = err
		if !isRateLimited(err) || attempt >= o.maxAttempts {
			break
		}
		if o.logger != nil {
			o.logger.Warn("price fetch rate limited, backing off",
				zap.String("token", tokenAddress),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
		}
		if err := o.sleep(ctx, backoff); err != nil {
			return decimal.Zero, err
		}
		backoff *= 2
	}

	if entry, ok := o.lookup(tokenAddress); ok {
		if o.logger != nil {
			o.logger.Warn("price fetch failed, serving stale value",
				zap.String("token", tokenAddress),
				zap.Time("fetched_at", entry.fetchedAt),
				zap.Error(lastErr),
			)
		}
		return entry.price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrUnavailable, tokenAddress, lastErr)
}

func (o *Oracle) lookup(tokenAddress string) (cacheEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.cache[tokenAddress]
	return entry, ok
}

func (o *Oracle) store(tokenAddress string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[tokenAddress] = cacheEntry{price: price, fetchedAt: o.now()}
}
