// Package errtranslate maps technical error strings to user-visible
// sentences via a regular-expression table. Unknown errors are compressed
// to at most 200 characters.
package errtranslate

import "regexp"

type rule struct {
	pattern *regexp.Regexp
	message string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)video (unavailable|not found|private|removed)`),
		"the video is not viewable (deleted, private, or region-restricted)"},
	{regexp.MustCompile(`(?i)(region|country).?(restrict|block)`),
		"the video is not viewable (deleted, private, or region-restricted)"},
	{regexp.MustCompile(`(?i)unsupported (url|host|platform)`),
		"this video platform is not supported"},
	{regexp.MustCompile(`(?i)context deadline exceeded|timed? ?out`),
		"processing exceeded the time limit"},
	{regexp.MustCompile(`(?i)out of memory|oom|cannot allocate memory`),
		"memory was exhausted; the video may be too long"},
	{regexp.MustCompile(`(?i)no such file or directory|missing.*(file|field|env)`),
		"a required input was missing; the job cannot continue"},
	{regexp.MustCompile(`(?i)rate.?limit|429|too many requests`),
		"the translation provider is rate-limiting requests; this will be retried"},
	{regexp.MustCompile(`(?i)connection refused|connection reset|network is unreachable`),
		"a network error interrupted processing; this will be retried"},
	{regexp.MustCompile(`(?i)unauthorized|forbidden|401|403`),
		"a credential was rejected by an external service"},
	{regexp.MustCompile(`(?i)unsupported language`),
		"the requested language pair is not supported"},
}

const maxLen = 200

// Translate maps a technical error message to a user-facing sentence using
// the first matching rule; unmatched messages are returned compressed to at
// most 200 characters.
func Translate(technical string) string {
	for _, r := range rules {
		if r.pattern.MatchString(technical) {
			return r.message
		}
	}
	return truncate(technical, maxLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
