/*
Package api implements the agent's operator HTTP API.

The API is how the host runtime delivers lifecycle events to the agent and
how operators observe and steer a node. It is served with chi and never
touches agent state directly: reads go through Backend.Report and writes
become events on the agent's queue, so the single-consumer event loop stays
the only writer.

# Endpoints

	GET  /status                   node report (phase, status, lock, members)
	GET  /health                   run the diagnostic battery; 503 when degraded
	GET  /livez                    process liveness
	GET  /ready                    process readiness (store and event loop up)
	GET  /metrics                  Prometheus metrics
	GET  /events                   most recent event deliveries
	POST /events/{kind}            deliver a lifecycle event; body is optional
	                               JSON metadata ({"key":"value"})
	POST /actions/rolling-restart  leader only; restart every node in turn

Events are accepted with 202 and an event id. The outcome (handled,
deferred, failed) shows up later under GET /events and in the node status.

Rolling restarts are rejected with 409 on a non-leader node. The check is
repeated by the agent when the event is handled.

# Example

	curl -X POST localhost:7947/events/config-changed
	{"id":"5b0f...","kind":"config-changed"}

	curl localhost:7947/status
	{"node":"db/0","leader":true,"phase":"active",
	 "status":{"code":"active","message":"workload running"}, ...}
*/
package api
