/*
Package restart serializes disruptive restarts across the fleet.

The lock lives entirely in the shared store and is arbitrated by the single
externally designated leader. There is no election and no quorum.

# Protocol

	 node scope (owner writes)          fleet scope (leader writes)
	 ─────────────────────────          ───────────────────────────
	 restart-lock = requested           restart-granted     = shepherd/2
	 restart-seq  = 1739894012000000    restart-granted-seq = 1739894012000000
	                                    restart-granted-at  = 2026-...Z
	                                    restart-queue       = shepherd/2@1739...,shepherd/0@1739...

	  node                       leader
	   │  requested, seq=S         │
	   ├──────────────────────────►│  Arbitrate(): no active grant,
	   │                           │  head of restart-queue wins
	   │  granted=node, seq=S      │
	   │◄──────────────────────────┤
	   │  restart workload         │
	   │  released                 │
	   ├──────────────────────────►│  Arbitrate(): holder released,
	   │                           │  clear grant, grant next

A grant is active while its holder still publishes restart-lock=requested
with the granted sequence. Pending requests wait in restart-queue in the
order the leader first saw them. A node treats itself as granted only when the
fleet scope names it with the sequence of its current request and its own
scope still says requested. Replication never rolls a scope back, so once
the leader has seen a release it cannot see the older request again.

# Re-delivery

Every step is safe to repeat. Request keeps an outstanding sequence,
Arbitrate keeps an active grant, and RunWithLock only runs while the node
observes its own grant, which it gives up by releasing.

# Failure and expiry

RunWithLock releases even when the restart fails. When the release itself
cannot be written the fleet stalls on that grant until an operator clears
restart-lock on the node, or until GrantTimeout (disabled by default)
expires it. An expired holder goes behind every other pending request.
Expiry trades mutual exclusion for liveness: a holder that is merely slow
may still be restarting when the next node is granted.

# Rolling restarts

An operator-requested rolling restart is a new generation id written to the
fleet scope by the leader. Each node whose acknowledged generation differs
requests the lock, restarts once under it and acknowledges the generation.
*/
package restart
