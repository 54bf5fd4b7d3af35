package prealloc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/giantswarm/prealloc/internal/core"
	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/spawn"
)

// managerConfig holds configuration for a Manager. It embeds
// core.ManagerConfig and adds the worker settings that decide which
// spawn.Spawner the core config receives.
type managerConfig struct {
	core.ManagerConfig

	workerBinary string
	workerArgs   []string
	workerEnv    []string

	// inProcess, when set, replaces the worker binary with goroutines in
	// the calling process.
	inProcess SubsystemFactory
	surface   SurfaceFactory
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		ManagerConfig: core.ManagerConfig{
			PoolSize:             DefaultPoolSize,
			AcquireTimeout:       DefaultAcquireTimeout,
			WarmTimeout:          DefaultWarmTimeout,
			StopTimeout:          DefaultStopTimeout,
			ShutdownDrainTimeout: DefaultShutdownDrainTimeout,
			BaseDataDir:          filepath.Join(os.TempDir(), DefaultBaseDataDirName),
			BackoffInitial:       DefaultBackoffInitial,
			BackoffMax:           DefaultBackoffMax,
		},
		workerBinary: DefaultWorkerBinary,
		workerArgs:   []string{DefaultWorkerCommand},
	}
}

// toCoreConfig returns the embedded core.ManagerConfig with its Spawner set.
func (c managerConfig) toCoreConfig() core.ManagerConfig {
	cfg := c.ManagerConfig
	cfg.Spawner = c.spawner()
	return cfg
}

func (c managerConfig) spawner() spawn.Spawner {
	if c.inProcess != nil {
		return &spawn.InProcessSpawner{
			NewRegistry: registryFactory(c.inProcess),
			Surface:     c.surface,
		}
	}
	return &spawn.ExecSpawner{
		Binary:      c.workerBinary,
		Args:        slices.Clone(c.workerArgs),
		Env:         slices.Clone(c.workerEnv),
		StopTimeout: c.StopTimeout,
	}
}

// registryFactory adapts a SubsystemFactory to the registry the warmer runs.
func registryFactory(f SubsystemFactory) spawn.RegistryFactory {
	return func(req spawn.Request) (*registry.Registry, func() error, error) {
		return buildRegistry(f, WorkerRequest{
			SlotID:     req.SlotID,
			DataDir:    req.DataDir,
			ProfileDir: req.ProfileDir,
		})
	}
}

// buildRegistry calls f and registers its descriptors in order. On a
// registration error the cleanup has already run.
func buildRegistry(f SubsystemFactory, req WorkerRequest) (*registry.Registry, func() error, error) {
	descs, cleanup, err := f(req)
	if err != nil {
		return nil, nil, fmt.Errorf("build subsystems: %w", err)
	}

	reg := registry.New()
	var errs []error
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		if cleanup != nil {
			err = errors.Join(err, cleanup())
		}
		return nil, nil, fmt.Errorf("register subsystems: %w", err)
	}
	return reg, cleanup, nil
}
