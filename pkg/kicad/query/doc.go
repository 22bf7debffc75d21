// Package query compiles component selectors into predicates.
//
// A selector combines field conditions with and, or, not and parentheses:
//
//	q, err := query.Compile(`ref ~ R* and value = 10k and not dnp`)
//	if err != nil {
//		return err
//	}
//	for _, c := range q.Select(sch) {
//		fmt.Println(c.Reference())
//	}
//
// Compiled queries plug into collection filters and bulk updates through
// Predicate:
//
//	sch.Components.BulkUpdate(q.Predicate(), func(c *schematic.Component) {
//		c.SetValue("22k")
//	})
package query
