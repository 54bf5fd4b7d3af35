// Package prealloc keeps a pool of pre-spawned worker processes that have
// already warmed their shared subsystems and created a blank surface, so a
// task can be attached to a warm process instead of paying the start-up
// cost on demand.
//
// Each worker runs a single warm-up pass: it warms every registered
// subsystem in order (key/value storage, settings, cookies and preferences
// by default), then creates an about:blank surface, then publishes a
// warm-up report. The pool hands out only workers whose report is clean and
// replaces every worker it hands out or discards.
//
// # Basic Usage
//
//	import "github.com/giantswarm/prealloc"
//
//	ctx := context.Background()
//
//	mgr := prealloc.NewManager(prealloc.WithPoolSize(4))
//	if err := mgr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	proc, err := mgr.Acquire(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Retire()
//
//	// proc.PID() is warm; attach the task to it.
//
// # Worker Binary
//
// By default the pool starts "prealloc worker --slot-id <id> --data-dir <dir>
// --profile-dir <dir>" for each slot. A custom binary handles those flags
// and calls ServeWorker:
//
//	err := prealloc.ServeWorker(ctx, prealloc.WorkerConfig{
//	    SlotID:     slotID,
//	    DataDir:    dataDir,
//	    ProfileDir: profileDir,
//	})
//
// # In-Process Workers
//
// WithInProcessWorkers warms slots on goroutines of the calling process.
// This suits embedding and tests:
//
//	mgr := prealloc.NewManager(prealloc.WithInProcessWorkers(prealloc.BuiltinSubsystems))
package prealloc
