package process

import "time"

// Stoppable is a process that can be stopped and then have its resources
// released.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops *p, closes it and sets *p to nil, returning the Stop
// error. Close and the nil assignment happen even when Stop fails. A nil p or
// *p is a no-op.
//
// The type parameters restrict P to pointer types implementing Stoppable so
// the nil check needs no reflection.
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
