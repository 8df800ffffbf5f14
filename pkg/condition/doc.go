/*
Package condition evaluates when/skipIf specifications.

A specification is a domain.Condition: a literal string, a predicate
function, or a nested group of both. Literals are advisory ("AI context")
and never gate programmatically; predicates combine with AND for when and
OR for skipIf. A predicate that errors or panics counts as false.
*/
package condition
