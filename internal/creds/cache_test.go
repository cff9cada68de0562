package creds_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reel/internal/creds"
	"reel/internal/services"
)

type stubSource struct {
	mu       sync.Mutex
	calls    map[string]int
	refresh  func(account string, call int) (creds.Token, error)
	inFlight int32
	maxSeen  int32
}

func newStubSource(refresh func(account string, call int) (creds.Token, error)) *stubSource {
	return &stubSource{calls: make(map[string]int), refresh: refresh}
}

func (s *stubSource) Refresh(ctx context.Context, account string) (creds.Token, error) {
	current := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, current) {
			break
		}
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	s.calls[account]++
	call := s.calls[account]
	s.mu.Unlock()
	return s.refresh(account, call)
}

func (s *stubSource) callCount(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[account]
}

func validToken(value string) creds.Token {
	return creds.Token{Value: value, ExpiresAt: time.Now().Add(2 * time.Hour)}
}

func TestGetCachesToken(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		return validToken("tok-1"), nil
	})
	cache := creds.NewCache(source)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := cache.Get(ctx, "acct")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if token != "tok-1" {
			t.Fatalf("token = %q, want tok-1", token)
		}
	}
	if got := source.callCount("acct"); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestConcurrentGetsCoalesceIntoSingleRefresh(t *testing.T) {
	release := make(chan struct{})
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		<-release
		return validToken("tok-shared"), nil
	})
	cache := creds.NewCache(source)

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Get(context.Background(), "acct")
		}(i)
	}

	// Let every caller pile up on the refresh before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "tok-shared" {
			t.Fatalf("caller %d token = %q, want tok-shared", i, tokens[i])
		}
	}
	if got := source.callCount("acct"); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
}

func TestAccountsRefreshIndependently(t *testing.T) {
	blockA := make(chan struct{})
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		if account == "a" {
			<-blockA
		}
		return validToken("tok-" + account), nil
	})
	cache := creds.NewCache(source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.Get(context.Background(), "a"); err != nil {
			t.Errorf("Get(a): %v", err)
		}
	}()

	// Account b must not wait behind account a's in-flight refresh.
	token, err := cache.Get(context.Background(), "b")
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if token != "tok-b" {
		t.Fatalf("token = %q, want tok-b", token)
	}

	close(blockA)
	<-done
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		return creds.Token{}, services.Wrap(services.ErrAuth, "zoom", "token", "invalid_client", nil)
	})
	cache := creds.NewCache(source, creds.WithBackoff([]time.Duration{time.Millisecond, time.Millisecond}))

	_, err := cache.Get(context.Background(), "acct")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("err = %v, want auth classification", err)
	}
	if got := source.callCount("acct"); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1 (auth failures never retry)", got)
	}
}

func TestTransientFailureRetriesWithBackoff(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		if call < 3 {
			return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "503", nil)
		}
		return validToken("tok-after-retry"), nil
	})
	cache := creds.NewCache(source, creds.WithBackoff([]time.Duration{time.Millisecond, time.Millisecond}))

	token, err := cache.Get(context.Background(), "acct")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if token != "tok-after-retry" {
		t.Fatalf("token = %q", token)
	}
	if got := source.callCount("acct"); got != 3 {
		t.Fatalf("refresh calls = %d, want 3", got)
	}
}

func TestExhaustedRetriesLeaveCacheEmpty(t *testing.T) {
	var succeed atomic.Bool
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		if succeed.Load() {
			return validToken("tok-late"), nil
		}
		return creds.Token{}, services.Wrap(services.ErrTransient, "zoom", "token", "timeout", nil)
	})
	cache := creds.NewCache(source, creds.WithBackoff([]time.Duration{time.Millisecond}))

	if _, err := cache.Get(context.Background(), "acct"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	first := source.callCount("acct")

	// Next caller starts a fresh refresh instead of reusing a bad value.
	succeed.Store(true)
	token, err := cache.Get(context.Background(), "acct")
	if err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if token != "tok-late" {
		t.Fatalf("token = %q, want tok-late", token)
	}
	if got := source.callCount("acct"); got != first+1 {
		t.Fatalf("refresh calls = %d, want %d", got, first+1)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		if call == 1 {
			return validToken("tok-first"), nil
		}
		return validToken("tok-second"), nil
	})
	cache := creds.NewCache(source)

	ctx := context.Background()
	if token, _ := cache.Get(ctx, "acct"); token != "tok-first" {
		t.Fatalf("initial token = %q", token)
	}

	cache.Invalidate("acct")

	token, err := cache.Get(ctx, "acct")
	if err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if token != "tok-second" {
		t.Fatalf("token = %q, want tok-second", token)
	}
	if got := source.callCount("acct"); got != 2 {
		t.Fatalf("refresh calls = %d, want 2", got)
	}
}

func TestExpiredTokenTriggersRefresh(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		if call == 1 {
			// Expires inside the refresh buffer, so it is immediately stale.
			return creds.Token{Value: "tok-short", ExpiresAt: time.Now().Add(time.Minute)}, nil
		}
		return validToken("tok-long"), nil
	})
	cache := creds.NewCache(source, creds.WithRefreshBuffer(5*time.Minute))

	ctx := context.Background()
	if token, err := cache.Get(ctx, "acct"); err != nil || token != "tok-short" {
		t.Fatalf("first Get = %q, %v", token, err)
	}
	token, err := cache.Get(ctx, "acct")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if token != "tok-long" {
		t.Fatalf("token = %q, want tok-long", token)
	}
}

func TestObserverSeesRefreshAttempts(t *testing.T) {
	source := newStubSource(func(account string, call int) (creds.Token, error) {
		return validToken("tok"), nil
	})
	var observed atomic.Int32
	cache := creds.NewCache(source, creds.WithObserver(func(account string, err error) {
		if account == "acct" && err == nil {
			observed.Add(1)
		}
	}))

	if _, err := cache.Get(context.Background(), "acct"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if observed.Load() != 1 {
		t.Fatalf("observer calls = %d, want 1", observed.Load())
	}
}
