/*
Package workload is the boundary between the agent and the host: running
shell commands under an enforced timeout, writing files atomically, and
starting or restarting the managed workload.

Every command goes through /bin/sh -c and is killed once its timeout (180s by
default) elapses. A non-zero exit or a timeout is reported as *CommandError
carrying the exit code and captured output.
*/
package workload
