/*
Package ports defines the driven-side interfaces of the engine: session and
message persistence, and distributed locking. Adapters under pkg/adapters
implement them; the core calls them only at turn-boundary checkpoints,
never mid-turn.
*/
package ports
