// Package spawn creates worker processes for the pool and hands back their
// warm-up reports.
//
// Two spawners are provided. ExecSpawner starts a separate worker binary per
// slot and reads the report the worker publishes into its data directory.
// InProcessSpawner runs the warmer on a goroutine, which is what embedding
// hosts and tests use when real process isolation is not needed.
package spawn
