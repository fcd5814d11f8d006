package shared

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Names are lowercase-alphanumeric tokens with single dashes between runs.
var nameToken = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var titleCaser = cases.Title(language.English)

// ValidName reports whether s is a well-formed name token.
func ValidName(s string) bool {
	return nameToken.MatchString(s)
}

// DisplayName derives a human-readable display name from a name token, e.g.
// "account-write" becomes "Account Write".
func DisplayName(token string) string {
	return titleCaser.String(strings.ReplaceAll(token, "-", " "))
}
