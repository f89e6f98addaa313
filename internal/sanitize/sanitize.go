// Package sanitize strips markup and script fragments from user-supplied strings.
//
// It deletes characters rather than escaping them, so the result is lossy.
// Output that is rendered must still go through html/template escaping.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	jsScheme      = regexp.MustCompile(`(?i)javascript:`)
	eventHandler  = regexp.MustCompile(`(?i)on\w+=`)
)

// Input applies one pass of: strip < and >, strip "javascript:", strip on<word>= prefixes, trim.
// A single pass can expose a new match (e.g. "oonx=nx=1"), so Input is not idempotent for such inputs.
func Input(raw string) string {
	s := angleBrackets.ReplaceAllString(raw, "")
	s = jsScheme.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Values sanitizes every value in place.
func Values(vals map[string][]string) {
	for k, vs := range vals {
		for i := range vs {
			vs[i] = Input(vs[i])
		}
		vals[k] = vs
	}
}
