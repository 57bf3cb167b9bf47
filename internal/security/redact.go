// Package security masks credentials before they reach logs, alerts or
// terminal output.
package security

import (
	"regexp"
	"strings"

	"nifty-strangler/internal/config"
)

// sensitivePatterns match credentials embedded in free text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|bot[_-]?token|enctoken|password)([=:\s]+)["']?([^\s"'&,]+)["']?`),
	// Telegram bot tokens inside API URLs: /bot<id>:<secret>/
	regexp.MustCompile(`(/bot)(\d+:)([A-Za-z0-9_-]+)`),
	// Kite authorization header: "token api_key:access_token"
	regexp.MustCompile(`(?i)(token )([A-Za-z0-9]+:)([A-Za-z0-9]+)`),
}

// MaskCredential keeps a short prefix and suffix of a secret.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskString masks every credential-looking substring of input.
func MaskString(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			if len(groups) != 4 {
				return MaskCredential(match)
			}
			return groups[1] + groups[2] + MaskCredential(groups[3])
		})
	}
	return result
}

// ContainsSensitiveData reports whether input carries anything MaskString
// would rewrite.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// RedactConfig returns a copy of cfg with every secret masked.
func RedactConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Credentials.Kite.APIKey = MaskCredential(cfg.Credentials.Kite.APIKey)
	out.Credentials.Kite.APISecret = MaskCredential(cfg.Credentials.Kite.APISecret)
	out.Credentials.Kite.AccessToken = MaskCredential(cfg.Credentials.Kite.AccessToken)
	out.Notifications.Telegram.BotToken = MaskCredential(cfg.Notifications.Telegram.BotToken)
	out.Notifications.Webhook.URL = MaskString(cfg.Notifications.Webhook.URL)
	return &out
}
