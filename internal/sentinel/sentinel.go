package sentinel

var _ error = Error("")

// Error is a constant error value. Two Error values are equal when their
// messages are equal, so a sentinel declared as
//
//	const ErrPoolClosed = sentinel.Error("pool is closed")
//
// matches itself through any number of fmt.Errorf("%w") wrappers.
type Error string

// Error returns the message.
func (e Error) Error() string {
	return string(e)
}
