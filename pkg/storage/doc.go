/*
Package storage provides the local replica of Shepherd's shared key-value store.

Every node keeps a full copy of the fleet's shared state: one scope per node
(named "<app>/<ordinal>") plus one fleet scope (named after the application).
A scope is a flat string map. The node's own writes and the snapshots pushed
by peers (see pkg/replication) are merged into this replica, and every
higher-level component reads from it.

# Architecture

	┌──────────────────── LOCAL REPLICA ────────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────┐              │
	│  │               Store interface              │              │
	│  │  Scopes / Get / Put / Replace / DropScope  │              │
	│  └──────┬──────────────┬──────────────┬──────┘              │
	│         │              │              │                      │
	│  ┌──────▼─────┐ ┌──────▼──────┐ ┌─────▼───────┐             │
	│  │ BoltStore  │ │ BadgerStore │ │ MemoryStore │             │
	│  │ shepherd.db│ │ LSM + vlog  │ │ process mem │             │
	│  └────────────┘ └─────────────┘ └─────────────┘             │
	│                                                             │
	│  Bolt layout:    scopes/<scope>/<key> = <value>            │
	│  Badger layout:  m/<scope>            scope marker          │
	│                  s/<scope>\x00<key>   entry                 │
	└─────────────────────────────────────────────────────────────┘

# Semantics

Put merges into a scope with last-writer-wins per key; an empty value removes
the key. Replace swaps the whole scope and is used when a peer snapshot
arrives. A scope exists once anything (even an empty map) was written to it,
which is what MembershipView uses to decide whether the peer channel formed.

# Backends

  - bolt (default): durable, single file, survives agent restarts
  - badger: durable LSM store with periodic value log GC
  - memory: tests and throwaway single-node setups

# Usage

	store, err := storage.Open(storage.BackendBolt, "/var/lib/shepherd")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Put("shepherd/0", map[string]string{"ip": "10.0.0.1"})
	kv, err := store.Get("shepherd/1")

Writes do not enforce scope ownership; pkg/peerstate layers that rule on top.
*/
package storage
