package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultGraphBaseURL is the production Microsoft Graph endpoint.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// graphTimeLayout is the fractional-seconds layout Graph uses for
// calendarView start/end values.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// GraphClient fetches Outlook calendar events from Microsoft Graph using the
// calendarView delta endpoint.
type GraphClient struct {
	httpClient *http.Client
	oauth      *oauth2.Config
	baseURL    string
	windowDays int

	now func() time.Time // overridable in tests
}

// NewGraphClient creates a Graph client. windowDays bounds the calendar view
// fetched on a full sync.
func NewGraphClient(oauthConfig *oauth2.Config, baseURL string, windowDays int) *GraphClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &GraphClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		oauth:      oauthConfig,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		windowDays: windowDays,
		now:        time.Now,
	}
}

// ExchangeRefreshToken exchanges a refresh token for a fresh access token
// at the provider's token endpoint.
func (c *GraphClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to exchange refresh token: %w", err)
	}
	return token, nil
}

// Wire types for the Graph calendarView delta payload.
type graphPage struct {
	Value     []graphEvent `json:"value"`
	NextLink  string       `json:"@odata.nextLink"`
	DeltaLink string       `json:"@odata.deltaLink"`
}

type graphEvent struct {
	Etag     string         `json:"@odata.etag"`
	ID       string         `json:"id"`
	Removed  *graphRemoved  `json:"@removed"`
	Subject  string         `json:"subject"`
	IsAllDay bool           `json:"isAllDay"`
	Start    graphDateTime  `json:"start"`
	End      graphDateTime  `json:"end"`
	Location *graphLocation `json:"location"`
}

type graphRemoved struct {
	Reason string `json:"reason"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

// FetchEvents retrieves the event window. With an empty sinceToken it walks
// the full calendarView and returns the delta link for the next call; with a
// delta link it returns only changes and tombstones. An expired delta link
// (410 Gone) transparently falls back to a full fetch.
func (c *GraphClient) FetchEvents(ctx context.Context, token *oauth2.Token, sinceToken string) (*FetchResult, error) {
	full := sinceToken == ""
	next := sinceToken
	if full {
		next = c.viewURL()
	}

	result := &FetchResult{Full: full}
	for next != "" {
		page, err := c.getPage(ctx, token, next)
		if err != nil {
			if !full && isGone(err) {
				// Delta token expired server-side; resynchronize.
				return c.FetchEvents(ctx, token, "")
			}
			return nil, err
		}

		for _, item := range page.Value {
			if item.Removed != nil {
				result.Removed = append(result.Removed, item.ID)
				continue
			}
			ev, err := item.toEvent()
			if err != nil {
				return nil, fmt.Errorf("failed to decode event %s: %w", item.ID, err)
			}
			result.Events = append(result.Events, ev)
		}

		switch {
		case page.NextLink != "":
			next = page.NextLink
		case page.DeltaLink != "":
			result.SinceToken = page.DeltaLink
			next = ""
		default:
			next = ""
		}
	}

	return result, nil
}

// viewURL builds the initial calendarView delta URL for the configured
// window, anchored at the current time.
func (c *GraphClient) viewURL() string {
	start := c.now().UTC()
	end := start.AddDate(0, 0, c.windowDays)

	q := url.Values{}
	q.Set("startDateTime", start.Format(time.RFC3339))
	q.Set("endDateTime", end.Format(time.RFC3339))

	return fmt.Sprintf("%s/me/calendarView/delta?%s", c.baseURL, q.Encode())
}

// statusError carries the HTTP status for retry/reset decisions.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("calendar request failed: HTTP %d: %s", e.status, e.body)
}

func isGone(err error) bool {
	serr, ok := err.(*statusError)
	return ok && serr.status == http.StatusGone
}

func (c *GraphClient) getPage(ctx context.Context, token *oauth2.Token, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	token.SetAuthHeader(req)
	// Normalize event times to UTC so parsing does not depend on the
	// mailbox timezone.
	req.Header.Set("Prefer", `outlook.timezone="UTC", odata.maxpagesize=50`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
		default:
			return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
		}
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return &page, nil
}

func (g graphEvent) toEvent() (Event, error) {
	start, err := g.Start.parse()
	if err != nil {
		return Event{}, fmt.Errorf("bad start time: %w", err)
	}
	end, err := g.End.parse()
	if err != nil {
		return Event{}, fmt.Errorf("bad end time: %w", err)
	}

	ev := Event{
		ID:     g.ID,
		Title:  g.Subject,
		Start:  start,
		End:    end,
		AllDay: g.IsAllDay,
		Etag:   g.Etag,
	}
	if g.Location != nil {
		ev.Location = g.Location.DisplayName
	}
	return ev, nil
}

func (d graphDateTime) parse() (time.Time, error) {
	loc := time.UTC
	if d.TimeZone != "" && d.TimeZone != "UTC" {
		l, err := time.LoadLocation(d.TimeZone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q: %w", d.TimeZone, err)
		}
		loc = l
	}

	t, err := time.ParseInLocation(graphTimeLayout, d.DateTime, loc)
	if err != nil {
		// Some payloads carry an explicit offset.
		t, err = time.Parse(time.RFC3339, d.DateTime)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}
