package prealloc

import (
	"time"

	"github.com/giantswarm/prealloc/internal/spawn"
)

// ConfigSnapshot holds a copy of managerConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	PoolSize             int
	AcquireTimeout       time.Duration
	WarmTimeout          time.Duration
	StopTimeout          time.Duration
	ShutdownDrainTimeout time.Duration
	BaseDataDir          string
	ProfileDir           string
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	WorkerBinary         string
	WorkerArgs           []string
	WorkerEnv            []string
	HasRegisterer        bool
	// Spawner is "exec" or "in-process".
	Spawner string
}

// ApplyOptionsForTesting creates a default managerConfig, applies the given
// options, and returns a ConfigSnapshot of the result.
func ApplyOptionsForTesting(opts ...ManagerOption) ConfigSnapshot {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	snap := ConfigSnapshot{
		PoolSize:             cfg.PoolSize,
		AcquireTimeout:       cfg.AcquireTimeout,
		WarmTimeout:          cfg.WarmTimeout,
		StopTimeout:          cfg.StopTimeout,
		ShutdownDrainTimeout: cfg.ShutdownDrainTimeout,
		BaseDataDir:          cfg.BaseDataDir,
		ProfileDir:           cfg.ProfileDir,
		BackoffInitial:       cfg.BackoffInitial,
		BackoffMax:           cfg.BackoffMax,
		WorkerBinary:         cfg.workerBinary,
		WorkerArgs:           cfg.workerArgs,
		WorkerEnv:            cfg.workerEnv,
		HasRegisterer:        cfg.Registerer != nil,
	}
	switch cfg.toCoreConfig().Spawner.(type) {
	case *spawn.ExecSpawner:
		snap.Spawner = "exec"
	case *spawn.InProcessSpawner:
		snap.Spawner = "in-process"
	}
	return snap
}
