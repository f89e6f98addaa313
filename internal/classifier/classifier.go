// Package classifier flags requests whose path, query or body look like an attack.
//
// The rules are coarse substring patterns, not parsers. Ordinary prose containing
// words such as "select" or "update" is flagged, and callers accept that.
package classifier

import "regexp"

// Rule is one named pattern family.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Rules are evaluated in order; the first match wins.
var Rules = []Rule{
	{Name: "path_traversal", Pattern: regexp.MustCompile(`(?i)(\.\.|/etc/|/bin/)`)},
	{Name: "sql_injection", Pattern: regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|exec|script)`)},
	{Name: "xss", Pattern: regexp.MustCompile(`(?i)(<script|javascript:|onerror=|onload=)`)},
}

type Result struct {
	Suspicious bool
	Rule       string // rule name, empty when clean
	Pattern    string // source text of the matching rule, for audit logs
	Match      string // the substring that matched
}

// Classify inspects path, query and body as one string.
func Classify(path, query, body string) Result {
	subject := path + query + body
	for _, r := range Rules {
		if m := r.Pattern.FindString(subject); m != "" {
			return Result{Suspicious: true, Rule: r.Name, Pattern: r.Pattern.String(), Match: m}
		}
	}
	return Result{}
}

// Matches reports every rule that matches, in rule order. Used for diagnostics;
// Classify is the decision.
func Matches(path, query, body string) []string {
	subject := path + query + body
	var names []string
	for _, r := range Rules {
		if r.Pattern.MatchString(subject) {
			names = append(names, r.Name)
		}
	}
	return names
}
