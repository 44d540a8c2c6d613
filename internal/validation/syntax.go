package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// DeniedKeywords are the mutating and DDL keywords a segment query may not contain
var DeniedKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER", "CREATE", "EXEC"}

// Syntax error and warning messages
const (
	MsgEmptyQuery        = "SQL query cannot be empty"
	MsgMustStartSelect   = "query must start with SELECT"
	MsgMissingFrom       = "query must contain a FROM clause"
	MsgUnbalancedParens  = "unbalanced parentheses"
	MsgMissingDistinct   = "query does not use DISTINCT; households may appear more than once"
	MsgSelectStar        = "SELECT * returns every column; select the household key explicitly"
	msgForbiddenKeywordF = "forbidden keyword: %s"
)

var (
	leadingKeywordPattern = regexp.MustCompile(`(?i)^SELECT\b`)
	fromPattern           = regexp.MustCompile(`(?i)\bFROM\b`)
	distinctPattern       = regexp.MustCompile(`(?i)\bDISTINCT\b`)
	selectStarPattern     = regexp.MustCompile(`(?i)\bSELECT\s+\*`)
	deniedPatterns        = compileDenied()
)

func compileDenied() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(DeniedKeywords))
	for _, kw := range DeniedKeywords {
		patterns[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}

	return patterns
}

// CheckSyntax applies the static lexical rules. Every rule runs
// independently except the empty-input check, which ends this validator.
func CheckSyntax(sql string) Verdict {
	v := NewVerdict()

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		v.AddError(MsgEmptyQuery)
		return v
	}

	if !leadingKeywordPattern.MatchString(trimmed) {
		v.AddError(MsgMustStartSelect)
	}

	if !fromPattern.MatchString(trimmed) {
		v.AddError(MsgMissingFrom)
	}

	for _, kw := range DeniedKeywords {
		if deniedPatterns[kw].MatchString(trimmed) {
			v.AddError(fmt.Sprintf(msgForbiddenKeywordF, kw))
		}
	}

	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		v.AddError(MsgUnbalancedParens)
	}

	if !distinctPattern.MatchString(trimmed) {
		v.AddWarning(MsgMissingDistinct)
	}

	if selectStarPattern.MatchString(trimmed) {
		v.AddWarning(MsgSelectStar)
	}

	return v
}
