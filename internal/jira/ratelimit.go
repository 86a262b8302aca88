package jira

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robby/stevenson/internal/dispatch"
)

// DefaultFallbackDelay is used when a throttled response has no retry hint.
const DefaultFallbackDelay = time.Second

// resetLayouts are the formats Jira uses for X-RateLimit-Reset.
var resetLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z",
	"2006-01-02T15:04Z07:00",
}

// RateLimitPolicy turns Jira throttling headers into dispatcher verdicts.
type RateLimitPolicy struct {
	// Fallback is the wait used without a usable hint. Defaults to DefaultFallbackDelay.
	Fallback time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Verify rejects 429 responses (and 503 carrying Retry-After). Accepted
// responses that report an exhausted quota still push the next request back.
func (p RateLimitPolicy) Verify(resp *http.Response) dispatch.Verdict {
	now := p.now()

	throttled := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "")
	if throttled {
		return dispatch.Verdict{Accepted: false, RetryNotBefore: p.retryAt(resp.Header, now)}
	}

	if strings.TrimSpace(resp.Header.Get("X-RateLimit-Remaining")) == "0" {
		if at, ok := parseReset(resp.Header.Get("X-RateLimit-Reset")); ok && at.After(now) {
			return dispatch.Verdict{Accepted: true, RetryNotBefore: at}
		}
	}
	return dispatch.Verdict{Accepted: true}
}

// retryAt takes the first hint that lies in the future. Stale or zero
// hints fall back to the configured delay.
func (p RateLimitPolicy) retryAt(h http.Header, now time.Time) time.Time {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if at, err := http.ParseTime(v); err == nil && at.After(now) {
			return at
		}
	}
	if at, ok := parseReset(h.Get("X-RateLimit-Reset")); ok && at.After(now) {
		return at
	}
	return now.Add(p.fallback())
}

func (p RateLimitPolicy) fallback() time.Duration {
	if p.Fallback <= 0 {
		return DefaultFallbackDelay
	}
	return p.Fallback
}

func (p RateLimitPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func parseReset(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range resetLayouts {
		if at, err := time.Parse(layout, v); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}
