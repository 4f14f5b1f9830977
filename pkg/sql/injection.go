package sql

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// LiteralCheckResult reports an injection pattern found inside a string
// literal of a generated statement.
type LiteralCheckResult struct {
	IsSQLi      bool
	Fingerprint string
	Literal     string
}

// ScreenLiterals extracts the single-quoted string literals from a
// statement and checks each for stacked-injection patterns with
// libinjection. Generated SQL is model output, so a literal that
// itself parses as SQL is treated as hostile rather than executed.
//
// Returns nil when all literals are clean.
func ScreenLiterals(sqlQuery string) []*LiteralCheckResult {
	var results []*LiteralCheckResult
	for _, literal := range extractStringLiterals(sqlQuery) {
		// Short plain values cannot carry a stacked statement.
		if len(literal) < 4 || !strings.ContainsAny(literal, ";-'\"\\") {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			results = append(results, &LiteralCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				Literal:     literal,
			})
		}
	}
	return results
}

// extractStringLiterals returns the contents of single-quoted literals,
// honoring SQL doubled-quote escapes.
func extractStringLiterals(sqlQuery string) []string {
	var literals []string
	var current strings.Builder
	inString := false

	runes := []rune(sqlQuery)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if !inString {
			if c == '\'' {
				inString = true
				current.Reset()
			}
			continue
		}
		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				current.WriteRune('\'')
				i++
				continue
			}
			inString = false
			literals = append(literals, current.String())
			continue
		}
		current.WriteRune(c)
	}

	return literals
}
