// Package profile bootstraps the shared on-disk profile that every worker
// process warms its subsystems against.
//
// A profile directory holds:
//
//	profile.db      SQLite database with the kv, settings and cookies tables
//	settings.toml   default settings document
//	prefs.yaml      default preferences document
//	.ready          marker written last; its presence means the profile is complete
//
// [Ensure] is safe to call from several pools at once: creation is guarded by
// an exclusive file lock and the marker is rechecked after the lock is held.
package profile
