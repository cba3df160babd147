/*
Package objectrepo implements content-addressed object storage: a
polymorphic blob store keyed by multihash, with atomic insert semantics
over local filesystem, HTTP, S3 and in-memory backends.

# Architecture

	┌────────────────────────── Store interface ───────────────────────┐
	│  Contains / GetBytes / GetStream / InsertBytes / InsertStream /   │
	│  InsertFileMove / Delete                                          │
	└──────────────┬──────────────┬──────────────┬──────────────┬──────┘
	               │              │              │              │
	          ┌────▼───┐     ┌────▼───┐     ┌────▼───┐     ┌────▼────┐
	          │ Memory │     │ LocalFS│     │  HTTP  │     │   S3    │
	          │ (map)  │     │(rename)│     │ (GET)  │     │(minio)  │
	          └────────┘     └────────┘     └────────┘     └─────────┘

Every backend satisfies the same atomicity and idempotence contract
(spec.md §4.1): concurrent readers either see the whole object or
nothing, and inserting the same content twice is a no-op that reports
already_existed=true.
*/
package objectrepo
