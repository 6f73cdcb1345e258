// Package cluster derives fleet membership, readiness and node addresses
// from the shared store.
package cluster
