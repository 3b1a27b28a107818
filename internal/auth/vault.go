package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Errors reported by the vault. Callers should test with errors.Is.
var (
	// ErrExpired means the credential is past its validity margin and no
	// refresh token is held, so only a new consent flow can recover.
	ErrExpired = errors.New("credential expired and no refresh token held")

	// ErrRevoked means the provider rejected the refresh token itself.
	// The vault has dropped the credential; re-authentication is required.
	ErrRevoked = errors.New("refresh token revoked")

	// ErrTransient means the refresh attempt failed for a retryable reason
	// (network, provider 5xx). The previous credential is left in place.
	ErrTransient = errors.New("transient credential refresh failure")
)

// DefaultMargin is the safety margin before expiry at which Current starts
// refreshing instead of handing out the soon-to-die token.
const DefaultMargin = time.Minute

// TokenExchanger exchanges a refresh token for a fresh access token.
// Implemented by the calendar provider client.
type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// refreshCall is a single in-flight refresh shared by all waiters.
type refreshCall struct {
	done  chan struct{}
	token *oauth2.Token
	err   error
}

// Vault owns the OAuth credential: validity checks, refresh, and persistence.
// Validity is always computed from the token's expiry timestamp; there is no
// stored "is valid" flag that could go stale.
type Vault struct {
	exchanger TokenExchanger
	store     TokenStore
	margin    time.Duration

	now func() time.Time // overridable in tests

	mu     sync.Mutex
	token  *oauth2.Token
	flight *refreshCall
}

// NewVault creates a vault with the given safety margin and loads any
// persisted credential from the store. A nil store disables persistence.
func NewVault(exchanger TokenExchanger, store TokenStore, margin time.Duration) (*Vault, error) {
	v := &Vault{
		exchanger: exchanger,
		store:     store,
		margin:    margin,
		now:       time.Now,
	}

	if store != nil {
		token, err := store.LoadToken()
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted token: %w", err)
		}
		v.token = token
	}

	return v, nil
}

// Authenticated reports whether the vault holds any credential at all.
// It says nothing about expiry; Current handles that.
func (v *Vault) Authenticated() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token != nil
}

// SetToken installs a credential obtained from the consent flow and
// persists it.
func (v *Vault) SetToken(token *oauth2.Token) error {
	v.mu.Lock()
	v.token = token
	v.mu.Unlock()

	if v.store != nil {
		if err := v.store.SaveToken(token); err != nil {
			return fmt.Errorf("failed to persist token: %w", err)
		}
	}
	return nil
}

// Current returns the credential if its expiry is more than the safety
// margin in the future. Otherwise it refreshes first. Concurrent callers
// during a refresh wait on the same underlying exchange.
func (v *Vault) Current(ctx context.Context) (*oauth2.Token, error) {
	v.mu.Lock()
	token := v.token
	if token != nil && token.AccessToken != "" && v.now().Add(v.margin).Before(token.Expiry) {
		v.mu.Unlock()
		return token, nil
	}

	call, err := v.startRefreshLocked()
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return v.wait(ctx, call)
}

// Refresh forces a refresh regardless of the current expiry, coalescing
// with any refresh already in flight.
func (v *Vault) Refresh(ctx context.Context) (*oauth2.Token, error) {
	v.mu.Lock()
	call, err := v.startRefreshLocked()
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return v.wait(ctx, call)
}

// startRefreshLocked returns the in-flight refresh, starting one if none is
// running. Caller must hold v.mu.
func (v *Vault) startRefreshLocked() (*refreshCall, error) {
	if v.flight != nil {
		return v.flight, nil
	}
	if v.token == nil || v.token.RefreshToken == "" {
		return nil, ErrExpired
	}

	call := &refreshCall{done: make(chan struct{})}
	v.flight = call
	go v.refresh(call, v.token.RefreshToken)
	return call, nil
}

func (v *Vault) wait(ctx context.Context, call *refreshCall) (*oauth2.Token, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		// The refresh keeps running; a later caller picks up its result.
		return nil, ctx.Err()
	}
}

func (v *Vault) refresh(call *refreshCall, refreshToken string) {
	token, err := v.exchanger.ExchangeRefreshToken(context.Background(), refreshToken)

	v.mu.Lock()
	v.flight = nil
	switch {
	case err == nil:
		// Providers may omit the refresh token on rotation-less grants.
		if token.RefreshToken == "" {
			token.RefreshToken = refreshToken
		}
		v.token = token
		call.token = token
		if v.store != nil {
			if serr := v.store.SaveToken(token); serr != nil {
				log.Printf("Warning: failed to persist refreshed token: %v", serr)
			}
		}
	case isInvalidGrant(err):
		// The refresh token itself is dead. Drop the credential so the
		// caller restarts the consent flow.
		v.token = nil
		call.err = fmt.Errorf("%w: %v", ErrRevoked, err)
		if v.store != nil {
			if serr := v.store.ClearToken(); serr != nil {
				log.Printf("Warning: failed to clear revoked token: %v", serr)
			}
		}
	default:
		// Keep the old (possibly expired) credential for a later retry.
		call.err = fmt.Errorf("%w: %v", ErrTransient, err)
	}
	v.mu.Unlock()

	close(call.done)
}

// isInvalidGrant reports whether the provider definitively rejected the
// grant, as opposed to a retryable failure.
func isInvalidGrant(err error) bool {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.ErrorCode == "invalid_grant" {
		return true
	}
	if rerr.Response == nil {
		return false
	}
	switch rerr.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
