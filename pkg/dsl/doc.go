// Package dsl provides a fluent builder for assembling routes in code, as
// an alternative to declaring them in YAML or constructing domain values by
// hand.
package dsl
