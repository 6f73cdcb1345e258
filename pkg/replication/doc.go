/*
Package replication moves scope snapshots between nodes over gRPC.

Each node runs a PeerSync service and periodically pushes a full snapshot of
its own scope (and, on the leader, the fleet scope) to every configured peer.
There is no acknowledgment protocol beyond the RPC status and no cross-key
atomicity: receivers simply replace their copy of the scope.

# Wire format

The single unary method /shepherd.PeerSync/Push takes a google.protobuf.Struct
and returns google.protobuf.Empty:

	{
	  "scope": "shepherd/1",
	  "rev":   "1739894012000000000",
	  "kv":    {"ip": "10.0.0.2", "restart-lock": "requested"},
	  "leave": false
	}

The revision is the sender's push time in nanoseconds. Receivers keep the
highest revision applied per scope and drop anything older, so delayed or
duplicated pushes never roll a scope back.

# Formation

A node with no peers forms a single-node channel immediately. Otherwise it
forms on its first successful exchange, either a push that a peer accepted or
a snapshot received from a peer. Forming publishes the node identity
(hostname, ip, address) into the local scope.

# Departure

Leave pushes a leave marker so peers drop the scope. Peers that vanish
without leaving are dropped after PeerTTL when it is set.
*/
package replication
