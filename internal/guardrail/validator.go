// Package guardrail statically inspects machine-generated SQL and rejects
// anything that is not a single, row-capped, read-only query over an allowed
// set of tables.
//
// Checks run in a fixed order and stop at the first failure:
//
//  1. single statement
//  2. starts with SELECT
//  3. no mutating or administrative keyword
//  4. lexes cleanly
//  5. carries a row-limiting clause (optional)
//  6. references only allowed tables
//
// Table extraction is a token scan rather than a full parser. It errs toward
// rejecting unusual but valid queries.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
)

// Check names reported in Verdict.Check.
const (
	CheckSingleStatement = "single_statement"
	CheckReadOnly        = "read_only"
	CheckKeywords        = "keyword_blocklist"
	CheckParse           = "parse"
	CheckRowLimit        = "row_limit"
	CheckTables          = "table_allowlist"
)

// ForbiddenKeywords are rejected wherever they appear as a whole word. INTO
// covers SELECT ... INTO, which creates a table in T-SQL.
var ForbiddenKeywords = []string{
	"DELETE", "UPDATE", "INSERT", "DROP", "ALTER", "TRUNCATE",
	"EXEC", "MERGE", "GRANT", "REVOKE", "CREATE", "INTO",
}

var keywordPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ForbiddenKeywords))
	for i, kw := range ForbiddenKeywords {
		out[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return out
}()

// rowLimitWords mark an explicit row cap: T-SQL TOP, LIMIT, or standard
// FETCH FIRST/NEXT.
var rowLimitWords = map[string]bool{"TOP": true, "LIMIT": true, "FETCH": true}

// Verdict is the outcome of Validate. A query is either valid or not.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
	// Check names the failed check; empty when Valid.
	Check string `json:"check,omitempty"`
}

// Err returns nil for a valid verdict and an errs.ErrValidation wrapping the
// reason otherwise.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, v.Reason)
}

func reject(check, reason string) Verdict {
	metrics.GuardrailRejectionsTotal.WithLabelValues(check).Inc()
	return Verdict{Reason: reason, Check: check}
}

// Validate runs every check against sql. allowed is the table allow-list,
// compared case-insensitively against the full dotted name of each
// referenced table. enforceRowCap enables the row-limiting clause check.
func Validate(sql string, allowed []string, enforceRowCap bool) Verdict {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	if len(upper) > 0 && strings.Contains(upper[:len(upper)-1], ";") {
		return reject(CheckSingleStatement, "Multiple SQL statements detected.")
	}

	if !startsWithSelect(upper) {
		return reject(CheckReadOnly, "Only SELECT statements are allowed.")
	}

	for i, re := range keywordPatterns {
		if re.MatchString(upper) {
			return reject(CheckKeywords, "Forbidden keyword detected: "+ForbiddenKeywords[i])
		}
	}

	toks, err := lex(sql)
	if err != nil {
		return reject(CheckParse, "SQL parsing failed.")
	}

	if enforceRowCap && !hasRowLimit(toks) {
		return reject(CheckRowLimit, "Row limit clause missing (TOP, LIMIT or FETCH required).")
	}

	allow := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		if t = strings.TrimSpace(t); t != "" {
			allow[strings.ToLower(t)] = true
		}
	}
	for _, ref := range extractTables(toks) {
		if !ref.ok || !allow[strings.ToLower(ref.name)] {
			return reject(CheckTables, "Unauthorized table detected: "+ref.name)
		}
	}

	return Verdict{Valid: true, Reason: "SQL validated successfully."}
}

// Tables returns the table names sql references after FROM, JOIN or APPLY,
// in order of appearance.
func Tables(sql string) ([]string, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ref := range extractTables(toks) {
		out = append(out, ref.name)
	}
	return out, nil
}

func startsWithSelect(upper string) bool {
	if !strings.HasPrefix(upper, "SELECT") {
		return false
	}
	rest := upper[len("SELECT"):]
	return rest == "" || !isWordChar(rest[0])
}

func hasRowLimit(toks []token) bool {
	for _, t := range toks {
		if t.kind == tokWord && rowLimitWords[strings.ToUpper(t.text)] {
			return true
		}
	}
	return false
}
