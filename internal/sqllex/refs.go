package sqllex

// TableRef is a table named after FROM or JOIN. Name is the last part of a
// qualified name.
type TableRef struct {
	Name  string
	Alias string
}

// ColumnRef is a qualifier.column reference
type ColumnRef struct {
	Qualifier string
	Column    string
}

// References holds the names a query mentions
type References struct {
	Tables  []TableRef
	CTEs    []string
	Columns []ColumnRef
}

// Extract collects table, CTE and qualified column references from sql.
// String literals and comments never produce references.
func Extract(sql string) References {
	toks := Tokenize(sql)

	var refs References

	for i := 0; i < len(toks); i++ {
		tok := toks[i]

		switch {
		case tok.Is("WITH"):
			refs.CTEs = append(refs.CTEs, cteNames(toks, i+1)...)
		case tok.Is("FROM") && !functionArgument(toks, i):
			i = tableList(toks, i+1, true, &refs) - 1
		case tok.Is("JOIN"):
			i = tableList(toks, i+1, false, &refs) - 1
		case tok.IsName():
			parts, next := dottedName(toks, i)
			if len(parts) >= 2 && !(next < len(toks) && toks[next].IsPunct("(")) {
				refs.Columns = append(refs.Columns, ColumnRef{
					Qualifier: parts[len(parts)-2],
					Column:    parts[len(parts)-1],
				})
			}

			i = next - 1
		}
	}

	return refs
}

// functionArgument reports FROM used inside EXTRACT(x FROM y) style calls
func functionArgument(toks []Token, i int) bool {
	return i >= 2 && toks[i-2].IsPunct("(") && toks[i-1].IsName()
}

// dottedName reads a.b.c starting at i, returning its parts and the index after it
func dottedName(toks []Token, i int) ([]string, int) {
	parts := []string{toks[i].Text}
	j := i + 1

	for j+1 < len(toks) && toks[j].IsPunct(".") && toks[j+1].IsName() {
		parts = append(parts, toks[j+1].Text)
		j += 2
	}

	return parts, j
}

// tableList reads table references starting at i and returns the index of
// the first token it did not consume
func tableList(toks []Token, i int, allowComma bool, refs *References) int {
	for i < len(toks) && toks[i].IsName() {
		parts, j := dottedName(toks, i)

		// table functions such as read_parquet(...) are not schema tables
		if j < len(toks) && toks[j].IsPunct("(") {
			return j
		}

		ref := TableRef{Name: parts[len(parts)-1]}

		if j < len(toks) && toks[j].Is("AS") {
			j++
		}

		if j < len(toks) && toks[j].IsName() {
			ref.Alias = toks[j].Text
			j++
		}

		refs.Tables = append(refs.Tables, ref)

		if !allowComma || j >= len(toks) || !toks[j].IsPunct(",") {
			return j
		}

		i = j + 1
	}

	return i
}

// cteNames reads "name [(cols)] AS (...) [, ...]" after WITH
func cteNames(toks []Token, i int) []string {
	var names []string

	if i < len(toks) && toks[i].Is("RECURSIVE") {
		i++
	}

	for i < len(toks) && toks[i].IsName() {
		names = append(names, toks[i].Text)
		i++

		if i < len(toks) && toks[i].IsPunct("(") {
			i = matchingParen(toks, i) + 1
		}

		if i >= len(toks) || !toks[i].Is("AS") {
			return names
		}

		i++

		for i < len(toks) && !toks[i].IsPunct("(") {
			i++ // [NOT] MATERIALIZED
		}

		i = matchingParen(toks, i) + 1

		if i >= len(toks) || !toks[i].IsPunct(",") {
			return names
		}

		i++
	}

	return names
}

// matchingParen returns the index of the ')' closing the '(' at i, or the
// last index when unbalanced
func matchingParen(toks []Token, i int) int {
	depth := 0

	for ; i < len(toks); i++ {
		switch {
		case toks[i].IsPunct("("):
			depth++
		case toks[i].IsPunct(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return len(toks) - 1
}

// HasTopLevel reports whether any of keywords appears outside parentheses.
// Keywords inside subqueries, literals and comments are ignored.
func HasTopLevel(sql string, keywords ...string) bool {
	depth := 0

	for _, tok := range Tokenize(sql) {
		switch {
		case tok.IsPunct("("):
			depth++
		case tok.IsPunct(")"):
			depth--
		case depth == 0 && tok.Kind == Keyword:
			for _, kw := range keywords {
				if tok.Is(kw) {
					return true
				}
			}
		}
	}

	return false
}
