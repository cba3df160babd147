/*
Package odf defines the core data model of the Open Data Fabric-style
temporal ledger: multihash-addressed metadata blocks, tagged-union
events, dataset identities and names, and the reference grammar used to
resolve any of those from a single user-supplied string.

# Data model

	┌──────────────────────────── Dataset ────────────────────────────┐
	│                                                                   │
	│   Seed ──▶ SetPollingSource ──▶ AddData ──▶ AddData ──▶ ...      │
	│   (root, kind=Root)                                              │
	│                                                                   │
	│   Seed ──▶ SetTransform ──▶ ExecuteQuery ──▶ ExecuteQuery ──▶ ...│
	│   (derivative, kind=Derivative)                                  │
	│                                                                   │
	└───────────────────────────────────────────────────────────────────┘

Every block carries prev_block_hash, sequence_number and system_time;
the chain that stores and validates blocks lives in package chain, not
here — this package only defines the shapes and the pure grammar/event
rules that do not need storage to express.

# Event union

MetadataEvent is a sealed interface: every concrete event type
implements eventMarker() so no type outside this package can satisfy
the interface, matching the "sum type, not subclassing" guidance for
this kind of tagged union.
*/
package odf
