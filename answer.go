package trealla

// Solution is a mapping of variable names to their bound terms in a query
// answer; an alias for Substitution used in that context.
type Solution = Substitution

// Answer is a query result.
type Answer struct {
	// Query is the original query goal.
	Query string
	// Solution (substitutions) for a successful query.
	// Indexed by variable name.
	Solution Solution `json:"answer"`
	// Output is captured stdout text from this query.
	Output string
}
