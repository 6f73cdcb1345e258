/*
Package types defines the core data structures shared by every Shepherd component.

Shepherd keeps each node of a fleet converged with a user-supplied setup script and
environment, and serializes disruptive restarts so that at most one node restarts at
a time. The types in this package describe that domain without depending on any
storage or transport.

# Core Types

Fleet membership:
  - Node: one fleet member, named "<app>/<ordinal>", with a resolved host
  - Readiness: whether the peer channel has formed (not-ready / ready)
  - Addressing: how hosts are resolved (address keys or ordinal-derived DNS names)

Configuration:
  - DesiredConfig: setup script body plus parsed environment assignments
  - AppliedConfig: what is currently materialized on disk

Coordination:
  - LockState: the local view of the fleet restart lock
    (unheld, requested, granted, released)

Lifecycle and status:
  - Phase: reconciliation state machine position
    (init, waiting-for-cluster, configuring, active, restarting, failed)
  - FailureReason: machine-checkable failure cause
    (config-invalid, config-write-failed, command-error)
  - Status: operator-facing code, reason and message

# Status Rendering

A Status renders as its code, or as "failed:<reason>" when failed:

	s := types.Status{Code: types.StatusFailed, Reason: types.ReasonCommandError}
	fmt.Println(s) // failed:command-error

Each status carries the log severity it is reported with: debug for expected
waits, warn for degraded health, error for failures.

# Node Names

Node identity is the ordinal parsed from the name:

	app, ordinal, err := types.ParseNodeName("shepherd/2")
	// app == "shepherd", ordinal == 2

Derived types (Node, Status) are recomputed on every event and are never
persisted to the shared store.
*/
package types
