// Package process owns the operating-system side of a worker: launching the
// worker binary with its output captured to log files, noticing when it
// exits, polling it for readiness, and stopping it with SIGTERM escalating to
// SIGKILL.
package process
