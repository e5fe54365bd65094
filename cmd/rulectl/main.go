// Command rulectl works with eligibility rules offline: it parses, combines
// and evaluates rule strings and exports them as CEL, without a server or a
// rule store.
//
// Usage:
//
//	# Show the tree of a rule
//	rulectl parse "age > 30 AND department = 'Sales'"
//
//	# Evaluate a rule against records from a YAML or JSON file
//	rulectl eval "age > 30" --data people.yaml
//
//	# Combine rules and show the result
//	rulectl combine --op AND "age > 30" "salary > 50000"
//
//	# Export a rule as CEL
//	rulectl cel "age > 30 AND NOT department = 'HR'"
package main

func main() {
	Execute()
}
