package query

// Expression is a disjunction: a or b or c
type Expression struct {
	Terms []*Conjunction `@@ ( "or" @@ )*`
}

// Conjunction is a and b and c
type Conjunction struct {
	Factors []*Factor `@@ ( "and" @@ )*`
}

// Factor is a negation, a parenthesized expression or a condition
type Factor struct {
	Not       *Factor     `  "not" @@`
	Group     *Expression `| "(" @@ ")"`
	Condition *Condition  `| @@`
}

// Condition compares a field with a value. Without an operator the field
// is tested for truth: "dnp", "power".
type Condition struct {
	Field *Field `@@`
	Op    string `( @Operator`
	Value *Value `  @@ )?`
}

// Field is a built-in field name, prop.<Name>, or a quoted property name
type Field struct {
	Name     string `  @Word`
	Property string `| @String`
}

// Value is an unquoted word or a quoted string
type Value struct {
	Text string `@( Word | String )`
}
