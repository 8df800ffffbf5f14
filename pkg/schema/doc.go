/*
Package schema validates the collected data record of a route.

A Schema maps field names to typed, constrained fields. Patches are applied
field by field: a value that violates its constraint is dropped while the
rest of the patch still lands, so partial records are always legal
intermediate states. Required fields drive route completion, never
rejection.
*/
package schema
