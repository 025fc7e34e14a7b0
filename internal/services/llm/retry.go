package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// retryPolicy governs how generation calls are retried. Rate-limit errors
// back off on the quota window; the initial 45s matches the Gemini
// token-per-minute reset, Claude 429s fit inside the same envelope.
type retryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		MaxRetries:     5,
		InitialBackoff: 45 * time.Second,
		MaxBackoff:     90 * time.Second,
		Multiplier:     1.5,
	}
}

// isRateLimited reports whether an error is a provider quota rejection.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota")
}

// retryDelayPattern matches "Please retry in Xs" or "retryDelay:Xs"
var retryDelayPattern = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// suggestedRetryDelay parses the API-suggested wait from a rate-limit
// error message, 0 when the provider gave none.
//
// Example:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func suggestedRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayPattern.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// backoff computes the wait before retry attempt+1. An API-suggested
// delay overrides InitialBackoff as the base; the result is capped at
// MaxBackoff.
func (p retryPolicy) backoff(attempt int, hint time.Duration) time.Duration {
	base := p.InitialBackoff
	if hint > 0 {
		base = hint + 5*time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= p.Multiplier
	}

	wait := time.Duration(float64(base) * multiplier)
	if wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}

// callWithRetries runs one generation call, retrying on failure. Quota
// rejections wait out the window per the policy; transient errors use a
// short linear backoff. The last error is returned once retries are
// exhausted.
func callWithRetries(ctx context.Context, logger arbor.ILogger, provider string, call func() error) error {
	policy := defaultRetryPolicy()

	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err = call()
		if err == nil {
			return nil
		}
		if attempt == policy.MaxRetries {
			break
		}

		wait := time.Duration(attempt+1) * 2 * time.Second
		if isRateLimited(err) {
			wait = policy.backoff(attempt, suggestedRetryDelay(err))
		}

		logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying provider call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return err
}
