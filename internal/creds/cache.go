package creds

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reel/internal/logging"
	"reel/internal/services"
)

// Token is a bearer credential for one platform account.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Source mints a fresh token for an account. Implementations classify
// failures with the services error markers: services.ErrAuth when the
// credentials themselves are rejected, anything else is treated as transient.
type Source interface {
	Refresh(ctx context.Context, account string) (Token, error)
}

// RefreshObserver is invoked after every refresh attempt against the Source.
// Used to feed the token refresh metrics; must not block.
type RefreshObserver func(account string, err error)

const defaultRefreshBuffer = 5 * time.Minute

var defaultBackoff = []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

// Option customises cache construction.
type Option func(*Cache)

// WithRefreshBuffer overrides how long before expiry a token is considered stale.
func WithRefreshBuffer(buffer time.Duration) Option {
	return func(c *Cache) {
		if buffer > 0 {
			c.refreshBuffer = buffer
		}
	}
}

// WithBackoff overrides the retry schedule used for transient refresh
// failures. The schedule length bounds the attempt count: len(backoff)+1
// attempts total.
func WithBackoff(backoff []time.Duration) Option {
	return func(c *Cache) {
		c.backoff = append([]time.Duration(nil), backoff...)
	}
}

// WithObserver registers a refresh attempt observer.
func WithObserver(observer RefreshObserver) Option {
	return func(c *Cache) {
		c.observer = observer
	}
}

// WithLogger attaches a logger for refresh diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "creds")
		}
	}
}

// Cache hands out valid bearer tokens per account, refreshing them through
// the Source while guaranteeing at most one in-flight refresh per account.
// Unrelated accounts refresh independently: each account gets its own lock,
// created lazily under a short-lived registry lock.
type Cache struct {
	source        Source
	refreshBuffer time.Duration
	backoff       []time.Duration
	observer      RefreshObserver
	logger        *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	refreshMu sync.Mutex

	tokenMu sync.RWMutex
	token   Token
}

// NewCache builds a credential cache over the given source.
func NewCache(source Source, opts ...Option) *Cache {
	cache := &Cache{
		source:        source,
		refreshBuffer: defaultRefreshBuffer,
		backoff:       defaultBackoff,
		logger:        logging.NewNop(),
		entries:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

func (c *Cache) entryFor(account string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[account]
	if !ok {
		e = &entry{}
		c.entries[account] = e
	}
	return e
}

func (c *Cache) valid(token Token, now time.Time) bool {
	return token.Value != "" && now.Before(token.ExpiresAt.Add(-c.refreshBuffer))
}

// Get returns a valid token for the account, refreshing it when stale.
// Concurrent callers for the same account coalesce onto a single refresh;
// callers for other accounts proceed independently.
func (c *Cache) Get(ctx context.Context, account string) (string, error) {
	e := c.entryFor(account)

	// Fast path: no exclusive lock taken for a still-valid token.
	e.tokenMu.RLock()
	token := e.token
	e.tokenMu.RUnlock()
	if c.valid(token, time.Now()) {
		return token.Value, nil
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	// Another caller may have refreshed while this one waited on the lock.
	e.tokenMu.RLock()
	token = e.token
	e.tokenMu.RUnlock()
	if c.valid(token, time.Now()) {
		return token.Value, nil
	}

	fresh, err := c.refresh(ctx, account)
	if err != nil {
		// The stale value stays in place so the next caller retries from
		// scratch instead of reusing a known-bad token.
		return "", err
	}

	e.tokenMu.Lock()
	e.token = fresh
	e.tokenMu.Unlock()
	return fresh.Value, nil
}

// Invalidate clears the cached token so the next Get is forced through the
// refresh path. Used when a consumer discovers the token was rejected
// downstream before its natural expiry.
func (c *Cache) Invalidate(account string) {
	c.mu.Lock()
	e, ok := c.entries[account]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.tokenMu.Lock()
	e.token = Token{}
	e.tokenMu.Unlock()
}

func (c *Cache) refresh(ctx context.Context, account string) (Token, error) {
	var lastErr error
	attempts := len(c.backoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		token, err := c.source.Refresh(ctx, account)
		if c.observer != nil {
			c.observer(account, err)
		}
		if err == nil {
			c.logger.Debug("token refreshed",
				logging.String(logging.FieldAccount, account),
				logging.Duration("valid_for", time.Until(token.ExpiresAt)),
			)
			return token, nil
		}
		lastErr = err

		// Rejected credentials cannot succeed on retry.
		if errors.Is(err, services.ErrAuth) {
			c.logger.Warn("token refresh rejected",
				logging.String(logging.FieldAccount, account),
				logging.Error(err),
				logging.String(logging.FieldEventType, "token_refresh_rejected"),
				logging.String(logging.FieldErrorHint, "verify the account's client credentials"),
			)
			return Token{}, err
		}
		if attempt == attempts-1 {
			break
		}

		c.logger.Debug("token refresh failed, backing off",
			logging.String(logging.FieldAccount, account),
			logging.Int("attempt", attempt+1),
			logging.Duration("backoff", c.backoff[attempt]),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-time.After(c.backoff[attempt]):
		}
	}
	return Token{}, services.Wrap(services.ErrTransient, "creds", "refresh",
		"token refresh attempts exhausted for account "+account, lastErr)
}
