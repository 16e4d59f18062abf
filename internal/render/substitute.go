package render

import (
	"regexp"
	"strings"
)

// tokenPattern matches $$, $name and ${name} tokens.
var tokenPattern = regexp.MustCompile(`\$(?:\$|\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))`)

// Substitute replaces $name and ${name} tokens with values from vars.
// $$ yields a literal dollar sign. Tokens with no matching variable are
// left verbatim so one missing variable never poisons a whole run.
func Substitute(text string, vars map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if tok == "$$" {
			return "$"
		}
		name := strings.TrimPrefix(tok, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

// MergeVars layers row values over defaults; row values win on conflict.
func MergeVars(defaults, row map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(row))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range row {
		merged[k] = v
	}
	return merged
}
