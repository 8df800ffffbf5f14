/*
Package domain contains the core types of the parley dialogue engine:
sessions, routes, steps, conditions, tools and turn results.

It has no dependencies on the runtime or on any adapter, so every other
package (stores, transports, providers) can share these types without
import cycles.
*/
package domain
