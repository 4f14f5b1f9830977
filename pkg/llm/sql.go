package llm

import (
	"regexp"
	"strings"
)

var (
	// Fenced block explicitly labeled sql.
	sqlFencePattern = regexp.MustCompile("(?is)```sql\\s*\n?(.*?)```")

	// Any fenced block whose body begins with SELECT or WITH.
	anyFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")

	// Bare SELECT ... ; statement in free text.
	bareSelectPattern = regexp.MustCompile(`(?is)\bSELECT\b.*?;`)
)

// ExtractSQL pulls a SQL statement out of a model response. It
// recognizes, in order: a fenced block labeled sql, any fenced block
// beginning with SELECT, and a bare "SELECT ...;" statement.
func ExtractSQL(response string) string {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	if match := sqlFencePattern.FindStringSubmatch(cleaned); match != nil {
		return strings.TrimSpace(match[1])
	}

	for _, match := range anyFencePattern.FindAllStringSubmatch(cleaned, -1) {
		body := strings.TrimSpace(match[1])
		upper := strings.ToUpper(body)
		if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
			return body
		}
	}

	if match := bareSelectPattern.FindString(cleaned); match != "" {
		return strings.TrimSpace(match)
	}

	// A response that is nothing but the statement.
	trimmed := strings.TrimSpace(cleaned)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return trimmed
	}

	return ""
}
