package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Telegram public usernames: 5-32 chars, letters, digits and underscores.
var channelUsername = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{3,31}$`)

// ValidateChannelID validates a Telegram chat reference: either "@username"
// or a numeric chat id (channels and supergroups use negative ids).
func ValidateChannelID(id string) error {
	if id == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	if strings.HasPrefix(id, "@") {
		if !channelUsername.MatchString(id) {
			return fmt.Errorf("invalid channel username: %q", id)
		}
		return nil
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("invalid numeric channel id %q: %w", id, err)
	}
	return nil
}

// NormalizeChannelID trims surrounding whitespace and adds the "@" prefix to
// bare usernames.
func NormalizeChannelID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "@") {
		return id
	}
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return id
	}
	return "@" + id
}

// ValidateAndNormalizeChannelID normalizes a channel reference and validates the result
func ValidateAndNormalizeChannelID(id string) (string, error) {
	normalized := NormalizeChannelID(id)
	if err := ValidateChannelID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateEndpoint checks that raw is an absolute http(s) or ws(s) URL with a host.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint URL %q has no host", raw)
	}
	return nil
}
