// Package subsystems provides the built-in shared subsystems a worker warms
// before it is handed out: key/value storage, settings, cookies and
// preferences. Each one reads the profile created by package profile and
// exposes a registry.Descriptor whose Warm loads it into memory.
package subsystems
