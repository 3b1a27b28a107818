package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/beekhof/calendar-notify/internal/auth"
	"github.com/beekhof/calendar-notify/internal/calendar"

	"golang.org/x/oauth2"
)

// Errors surfaced to the caller. Everything below them has already been
// retried or classified.
var (
	// ErrUnauthenticated means the credential is expired or revoked and
	// the user must go through the consent flow again.
	ErrUnauthenticated = errors.New("sync requires re-authentication")

	// ErrUnavailable means the provider could not be reached after all
	// retries. The previous event snapshot is left intact.
	ErrUnavailable = errors.New("calendar provider unavailable")
)

// TokenVault supplies valid credentials. Implemented by auth.Vault.
type TokenVault interface {
	Current(ctx context.Context) (*oauth2.Token, error)
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// TriggerSink receives merge diffs so reminder triggers track the store.
// Implemented by notify.Scheduler.
type TriggerSink interface {
	Upsert(events []calendar.Event)
	Remove(ids []string)
}

// Engine periodically refreshes the event store from the provider with
// minimal-diff merges.
type Engine struct {
	vault    TokenVault
	provider calendar.ProviderClient
	store    *calendar.Store
	triggers TriggerSink

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	now func() time.Time // overridable in tests

	mu         sync.Mutex
	sinceToken string
}

// NewEngine creates a sync engine. triggers may be nil when no scheduler is
// attached (one-shot export runs).
func NewEngine(vault TokenVault, provider calendar.ProviderClient, store *calendar.Store, triggers TriggerSink) *Engine {
	return &Engine{
		vault:       vault,
		provider:    provider,
		store:       store,
		triggers:    triggers,
		maxAttempts: 3,
		backoffBase: 1 * time.Second,
		backoffCap:  30 * time.Second,
		now:         time.Now,
	}
}

// SyncOnce fetches the remote event list and merges it into the store.
// Transient failures are retried with capped exponential backoff; on auth
// failure it returns ErrUnauthenticated, on exhausted retries
// ErrUnavailable. The store keeps its previous snapshot in both cases.
func (e *Engine) SyncOnce(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, e.backoff(attempt)); err != nil {
				return err
			}
		}

		err := e.attempt(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, auth.ErrExpired),
			errors.Is(err, auth.ErrRevoked),
			errors.Is(err, calendar.ErrUnauthorized):
			return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			lastErr = err
			log.Printf("Sync attempt %d/%d failed: %v", attempt+1, e.maxAttempts, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// attempt is a single fetch+merge. The previous snapshot survives any error.
func (e *Engine) attempt(ctx context.Context) error {
	token, err := e.vault.Current(ctx)
	if err != nil {
		return err
	}

	fetch, err := e.provider.FetchEvents(ctx, token, e.sinceToken)
	if errors.Is(err, calendar.ErrUnauthorized) {
		// The access token may have been invalidated server-side before
		// its stated expiry. Force one refresh and retry once.
		token, err = e.vault.Refresh(ctx)
		if err != nil {
			return err
		}
		fetch, err = e.provider.FetchEvents(ctx, token, e.sinceToken)
	}
	if err != nil {
		return err
	}

	result := e.store.ApplyMerge(fetch, e.now())
	if fetch.SinceToken != "" {
		e.sinceToken = fetch.SinceToken
	}

	if e.triggers != nil {
		if len(result.Added) > 0 {
			e.triggers.Upsert(result.Added)
		}
		if len(result.Updated) > 0 {
			e.triggers.Upsert(result.Updated)
		}
		if len(result.RemovedIDs) > 0 {
			e.triggers.Remove(result.RemovedIDs)
		}
	}

	if len(result.Added)+len(result.Updated)+len(result.RemovedIDs) > 0 {
		log.Printf("Sync merged %d added, %d updated, %d removed event(s)",
			len(result.Added), len(result.Updated), len(result.RemovedIDs))
	}
	return nil
}

// backoff returns the delay before the given retry attempt (1-based),
// doubling from the base up to the cap.
func (e *Engine) backoff(attempt int) time.Duration {
	d := e.backoffBase << (attempt - 1)
	if d > e.backoffCap {
		d = e.backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
