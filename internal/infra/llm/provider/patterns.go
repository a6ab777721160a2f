package provider

import "strings"

var throttlePatterns = []string{
	"rate limit",
	"too many requests",
	"resource exhausted",
	"resource_exhausted",
	"quota exceeded",
	"exceeded your current quota",
	"daily request count exceeded",
	"429",
}

var unavailablePatterns = []string{
	"model not found",
	"is not found for api version",
	"does not exist",
	"not supported for generatecontent",
	"permission denied",
	"invalid api key",
	"api key not valid",
	"unauthorized",
}

// DetectThrottlePattern checks if a message reads like a quota rejection.
func DetectThrottlePattern(message string) bool {
	return containsAny(strings.ToLower(message), throttlePatterns)
}

// DetectUnavailablePattern checks if a message reads like a missing or forbidden model.
func DetectUnavailablePattern(message string) bool {
	return containsAny(strings.ToLower(message), unavailablePatterns)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
