// Package expr implements the eligibility rule language: a tokenizer, a
// recursive-descent parser producing an immutable tree, a combiner that joins
// stored trees under AND or OR, and an evaluator that applies a tree to a data
// record.
//
// Everything in this package is a pure function of its arguments. There is no
// shared state, so parsing and evaluation may run concurrently without
// locking.
//
// A rule string looks like:
//
//	(age > 30 AND department = 'Sales') OR NOT active = FALSE
//
// AND binds tighter than OR and NOT binds tighter than AND. A run of the same
// operator is kept as one node with several children.
package expr
