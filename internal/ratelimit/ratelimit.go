// Package ratelimit throttles requests per scope and caller identity with
// fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devroad/mentorchat/internal/metrics"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Rule is a request budget of Limit hits per Window. Name labels metrics;
// counters are kept per scope and identity.
type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
}

// Guard hands out limiter instances per rate over a shared store.
type Guard struct {
	store   limiter.Store
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	limiters map[limiter.Rate]*limiter.Limiter
}

// NewMemory keeps counters in process memory.
func NewMemory(m *metrics.Metrics) *Guard {
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "mentorchat",
		CleanUpInterval: time.Minute,
	})
	return newGuard(store, m)
}

// NewRedis keeps counters in redis so several processes share budgets.
func NewRedis(client *redis.Client, m *metrics.Metrics) (*Guard, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "mentorchat",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return newGuard(store, m), nil
}

func newGuard(store limiter.Store, m *metrics.Metrics) *Guard {
	return &Guard{
		store:    store,
		metrics:  m,
		now:      time.Now,
		limiters: make(map[limiter.Rate]*limiter.Limiter),
	}
}

func (g *Guard) limiterFor(rule Rule) *limiter.Limiter {
	rate := limiter.Rate{Period: rule.Window, Limit: rule.Limit}

	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[rate]
	if !ok {
		l = limiter.New(g.store, rate)
		g.limiters[rate] = l
	}
	return l
}

// Check counts one hit for identity in scope. A rejected hit returns the
// decision together with a RESOURCE_EXHAUSTED error carrying the retry hint.
func (g *Guard) Check(ctx context.Context, rule Rule, scope, identity string) (Decision, error) {
	lctx, err := g.limiterFor(rule).Get(ctx, Key(scope, identity))
	if err != nil {
		return Decision{}, fmt.Errorf("rate limiter error: %w", err)
	}

	reset := time.Unix(lctx.Reset, 0)
	d := Decision{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		Reset:     reset,
	}
	if d.Allowed {
		return d, nil
	}

	g.metrics.RateLimited(rule.Name)
	rejected := apperrors.RateLimited(reset.Sub(g.now()))
	d.RetryAfter = apperrors.RetryAfterOf(rejected)
	return d, rejected
}

func Key(scope, identity string) string {
	return scope + ":" + identity
}
