// Package fileutil has the small filesystem helpers shared by the pool and
// its workers: directory creation and atomic file replacement.
package fileutil
