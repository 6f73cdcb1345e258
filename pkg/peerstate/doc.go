/*
Package peerstate is the typed read/write facade over the shared store.

A node may only write its own scope. The fleet scope is written by the
externally designated leader only. Reads of any scope return whatever its
owner most recently published, with no synchronization barrier.

Before the peer channel forms (the local replica holds no scope at all) the
store is treated as unavailable: reads return empty maps and writes are
silently dropped. This is an expected state for an isolated node, not an
error.

	state := peerstate.New(store, "shepherd/1", "shepherd", leader)
	if err := state.WriteLocal(map[string]string{"restart-lock": "requested"}); err != nil {
		return err
	}
	grant := state.ReadFleet()["restart-granted"]
*/
package peerstate
