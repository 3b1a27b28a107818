package calendar

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Event is a single calendar entry as cached locally. Events are immutable
// values; an update from the provider replaces the whole value keyed by ID.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	AllDay   bool
	Location string
	// Etag is the provider's opaque version marker. Empty when the
	// provider did not supply one.
	Etag string
}

// Same reports whether two events are structurally identical. Used to detect
// changes when the provider supplies no etag.
func (e Event) Same(other Event) bool {
	return e.ID == other.ID &&
		e.Title == other.Title &&
		e.Start.Equal(other.Start) &&
		e.End.Equal(other.End) &&
		e.AllDay == other.AllDay &&
		e.Location == other.Location
}

// Changed reports whether other is a different version of the same event,
// preferring etag comparison and falling back to structural comparison.
func (e Event) Changed(other Event) bool {
	if e.Etag != "" || other.Etag != "" {
		return e.Etag != other.Etag
	}
	return !e.Same(other)
}

// Provider errors. The sync engine maps these onto its own taxonomy.
var (
	// ErrUnauthorized means the provider rejected the access token.
	ErrUnauthorized = errors.New("provider rejected the credential")

	// ErrRateLimited means the provider asked us to back off.
	ErrRateLimited = errors.New("provider rate limit exceeded")
)

// FetchResult is one provider fetch. When Full is set, Events is the
// complete window contents and anything previously known but absent from it
// has been deleted remotely. When Full is unset (delta fetch), Events holds
// only changed entries and Removed lists tombstoned IDs.
type FetchResult struct {
	Events     []Event
	Removed    []string
	Full       bool
	SinceToken string
}

// ProviderClient fetches the remote event list. sinceToken is the opaque
// delta token from the previous fetch; empty means a full fetch.
type ProviderClient interface {
	FetchEvents(ctx context.Context, token *oauth2.Token, sinceToken string) (*FetchResult, error)
}
