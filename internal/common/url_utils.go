package common

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
)

// testURLHosts are hostnames treated as local/test targets.
// Fetching these is only allowed in development mode.
var testURLHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::1":       true,
}

// ValidateFetchURL validates a URL submitted for document intake.
// Returns whether the URL is valid, whether it targets a test/local host,
// non-fatal warnings, and a fatal error if the URL cannot be used at all.
func ValidateFetchURL(rawURL string, logger arbor.ILogger) (isValid bool, isTestURL bool, warnings []string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return false, false, nil, fmt.Errorf("url is empty")
	}

	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return false, false, nil, fmt.Errorf("invalid url: %w", parseErr)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, false, nil, fmt.Errorf("unsupported scheme %q: only http and https are allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return false, false, nil, fmt.Errorf("url has no host")
	}

	// Local/test hosts are flagged so callers can reject them in production
	if testURLHosts[strings.ToLower(host)] {
		isTestURL = true
	} else if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		isTestURL = true
	}

	if parsed.Scheme == "http" && !isTestURL {
		warnings = append(warnings, "url uses plain http; content will be fetched without transport encryption")
	}

	if parsed.Fragment != "" {
		warnings = append(warnings, "url fragment is ignored when fetching")
	}

	if logger != nil {
		for _, w := range warnings {
			logger.Debug().Str("url", trimmed).Msg(w)
		}
	}

	return true, isTestURL, warnings, nil
}

// NormalizeFetchURL trims whitespace and strips fragments so equivalent
// submissions map to the same document source.
func NormalizeFetchURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	parsed.Fragment = ""
	return parsed.String()
}
