package query

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SelectorLexer splits selector expressions. Words cover field names,
// keywords, numbers and unquoted values, so glob patterns such as R* or
// Device:* need no quoting.
var SelectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},

	// Double quoted, with Go escapes
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},

	{Name: "Operator", Pattern: `!=|!~|<=|>=|=|~|<|>`},
	{Name: "Paren", Pattern: `[()]`},

	{Name: "Word", Pattern: `[^\s()"!=~<>]+`},
})
