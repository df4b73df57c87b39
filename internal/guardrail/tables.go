package guardrail

import "strings"

// fromEnders close the FROM clause at the current parenthesis depth; a comma
// after one of them is not another FROM item.
var fromEnders = map[string]bool{
	"SELECT": true, "WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "WINDOW": true, "OPTION": true, "FOR": true, "QUALIFY": true,
}

// tableRef is a table reference found in a FROM list or after JOIN or APPLY.
type tableRef struct {
	// name is the dotted name with delimiters stripped, e.g. "dbo.Vendors".
	name string
	// ok is false when the item is not a table name at all, such as a
	// literal, an operator or the end of the statement.
	ok bool
}

// scope is one parenthesis level. inFrom is set between a FROM keyword and
// the clause that ends its list.
type scope struct {
	inFrom bool
}

// extractTables walks the tokens once and reports every FROM item. Items
// follow FROM, JOIN, APPLY, and any comma inside a FROM clause at the same
// parenthesis depth, so commas after ON expressions or table hints still
// start a new item. A parenthesis where an item is expected opens either a
// subquery (its first word is SELECT) whose own FROM is found by the same
// walk, or a nested join list whose first item is read like any other.
func extractTables(toks []token) []tableRef {
	var (
		refs   []tableRef
		scopes = []scope{{}}
		expect bool
	)
	top := func() *scope { return &scopes[len(scopes)-1] }

	for i := 0; i < len(toks); i++ {
		t := toks[i]

		if expect {
			expect = false
			switch {
			case t.is("("):
				sub := i+1 < len(toks) && toks[i+1].kind == tokWord && isSubqueryStart(toks[i+1].text)
				scopes = append(scopes, scope{inFrom: !sub})
				expect = !sub
			case t.kind == tokWord || t.kind == tokIdent:
				var ref tableRef
				ref, i = readName(toks, i)
				refs = append(refs, ref)
				if i < len(toks) && toks[i].is("(") {
					// Table-valued function: keep the name, skip the arguments.
					i = skipGroup(toks, i)
				}
				i--
			default:
				refs = append(refs, tableRef{name: t.text})
			}
			continue
		}

		switch {
		case t.is("("):
			scopes = append(scopes, scope{})
		case t.is(")"):
			if len(scopes) > 1 {
				scopes = scopes[:len(scopes)-1]
			}
		case t.is(","):
			expect = top().inFrom
		case t.kind == tokWord:
			switch kw := strings.ToUpper(t.text); {
			case kw == "FROM":
				top().inFrom = true
				expect = true
			case kw == "JOIN" || kw == "APPLY":
				expect = true
			case fromEnders[kw]:
				top().inFrom = false
			}
		}
	}

	if expect {
		refs = append(refs, tableRef{name: "end of statement"})
	}
	return refs
}

func isSubqueryStart(word string) bool {
	w := strings.ToUpper(word)
	return w == "SELECT" || w == "WITH"
}

// readName reads ident ( "." ident )* starting at toks[j] and returns the
// offset after it.
func readName(toks []token, j int) (tableRef, int) {
	parts := []string{toks[j].text}
	j++
	for j+1 < len(toks) && toks[j].is(".") && (toks[j+1].kind == tokWord || toks[j+1].kind == tokIdent) {
		parts = append(parts, toks[j+1].text)
		j += 2
	}
	return tableRef{name: strings.Join(parts, "."), ok: true}, j
}

// skipGroup returns the offset just past the parenthesis group opening at toks[j].
func skipGroup(toks []token, j int) int {
	depth := 0
	for ; j < len(toks); j++ {
		switch {
		case toks[j].is("("):
			depth++
		case toks[j].is(")"):
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return j
}
