package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletmirror/internal/config"
)

type fakeSource struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	price decimal.Decimal
	err   error
}

func (f *fakeSource) Price(ctx context.Context, token string) (decimal.Decimal, error) {
	if f.calls >= len(f.responses) {
		return decimal.Zero, errors.New("unexpected call")
	}
	r := f.responses[f.calls]
	f.calls++
	return r.price, r.err
}

type rateLimitErr struct{}

func (rateLimitErr) Error() string     { return "429 too many requests" }
func (rateLimitErr) RateLimited() bool { return true }

func newTestOracle(src *fakeSource) (*Oracle, *[]time.Duration) {
	o := New(src, config.OracleConfig{
		CacheTTL:    300 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	}, nil)
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return o, &slept
}

func TestPrice_CacheHitSkipsFetch(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{{price: decimal.NewFromInt(7)}}}
	o, _ := newTestOracle(src)

	p1, err := o.Price(context.Background(), "tok")
	if err != nil {
		t.Fatalf("first price: %v", err)
	}
	p2, err := o.Price(context.Background(), "tok")
	if err != nil {
		t.Fatalf("second price: %v", err)
	}
	if !p1.Equal(p2) {
		t.Fatalf("p1=%s p2=%s", p1, p2)
	}
	if src.calls != 1 {
		t.Fatalf("calls=%d want 1 (second lookup should hit cache)", src.calls)
	}
}

func TestPrice_ExpiredEntryRefetches(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{
		{price: decimal.NewFromInt(7)},
		{price: decimal.NewFromInt(9)},
	}}
	o, _ := newTestOracle(src)

	now := time.Now()
	o.now = func() time.Time { return now }
	if _, err := o.Price(context.Background(), "tok"); err != nil {
		t.Fatalf("first price: %v", err)
	}

	now = now.Add(301 * time.Second)
	p, err := o.Price(context.Background(), "tok")
	if err != nil {
		t.Fatalf("second price: %v", err)
	}
	if !p.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("p=%s want 9", p)
	}
	if src.calls != 2 {
		t.Fatalf("calls=%d want 2", src.calls)
	}
}

func TestPrice_RateLimitExhaustsRetries(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{
		{err: rateLimitErr{}},
		{err: rateLimitErr{}},
		{err: rateLimitErr{}},
	}}
	o, slept := newTestOracle(src)

	_, err := o.Price(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v want ErrUnavailable", err)
	}
	if src.calls != 3 {
		t.Fatalf("calls=%d want 3", src.calls)
	}
	// Backoff doubles from the base: 1s before attempt 2, 2s before attempt 3.
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Fatalf("slept=%v want [1s 2s]", *slept)
	}
}

func TestPrice_TerminalFailureDoesNotRetry(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{
		{err: errors.New("boom")},
	}}
	o, slept := newTestOracle(src)

	_, err := o.Price(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v want ErrUnavailable", err)
	}
	if src.calls != 1 {
		t.Fatalf("calls=%d want 1 (no retry on terminal failure)", src.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept=%v want none", *slept)
	}
}

func TestPrice_ServesStaleOnFailure(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{
		{price: decimal.NewFromInt(7)},
		{err: errors.New("boom")},
	}}
	o, _ := newTestOracle(src)

	now := time.Now()
	o.now = func() time.Time { return now }
	if _, err := o.Price(context.Background(), "tok"); err != nil {
		t.Fatalf("first price: %v", err)
	}

	now = now.Add(301 * time.Second)
	p, err := o.Price(context.Background(), "tok")
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if !p.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("p=%s want stale 7", p)
	}
}

func TestPrice_SleepCancelledByContext(t *testing.T) {
	src := &fakeSource{responses: []fakeResponse{
		{err: rateLimitErr{}},
	}}
	o := New(src, config.OracleConfig{MaxAttempts: 3, BackoffBase: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Price(ctx, "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
