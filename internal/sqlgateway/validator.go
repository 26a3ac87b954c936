// Package sqlgateway implements the read-only SQL query gateway: untrusted
// query strings are screened by a denylist-plus-allowlist double gate before
// constrained execution against PostgreSQL. The gate is deliberately coarse;
// it is an operator convenience for a trusted internal tool, not a security
// boundary for untrusted callers.
package sqlgateway

import (
	"regexp"
	"strings"

	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
)

// allowedCommands are the only statement keywords a query may start with.
var allowedCommands = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// deniedPatterns match mutating statements anywhere in the query,
// case-insensitively and tolerant of arbitrary whitespace.
var deniedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)DELETE\s+FROM`),
	regexp.MustCompile(`(?i)UPDATE\s+\w+\s+SET`),
	regexp.MustCompile(`(?i)INSERT\s+INTO`),
	regexp.MustCompile(`(?i)DROP\s+TABLE`),
	regexp.MustCompile(`(?i)ALTER\s+TABLE`),
	regexp.MustCompile(`(?i)CREATE\s+TABLE`),
	regexp.MustCompile(`(?i)\bTRUNCATE\b`),
	regexp.MustCompile(`(?i)\bGRANT\b`),
	regexp.MustCompile(`(?i)\bREVOKE\b`),
}

// ValidateQuery rejects anything that is not a plausibly safe, non-mutating
// read. Both gates are checked independently: a query must start with an
// allow-listed keyword AND match no denied pattern.
func ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return apperrors.New(apperrors.ErrQueryRejected, 400, "query cannot be empty")
	}

	for _, pattern := range deniedPatterns {
		if pattern.MatchString(trimmed) {
			return apperrors.New(apperrors.ErrQueryRejected, 400,
				"query contains a mutating operation; only read statements are allowed")
		}
	}

	first := strings.ToUpper(strings.Fields(trimmed)[0])
	if !allowedCommands[first] {
		return apperrors.Newf(apperrors.ErrQueryRejected, 400,
			"command %q is not allowed; only SELECT and WITH statements are permitted", first)
	}
	return nil
}
