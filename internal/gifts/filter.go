package gifts

import "strings"

// Matches reports whether a normalized gift name passes a subscriber filter.
// An empty filter matches everything; otherwise at least one token must be a
// substring of the name.
func Matches(normalizedGiftName string, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	for _, token := range tokens {
		if strings.Contains(normalizedGiftName, token) {
			return true
		}
	}
	return false
}
