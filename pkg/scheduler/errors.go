package scheduler

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = &PoolError{"worker pool closed"}

// ErrQueueClosed is returned by SerialQueue.Do after Close.
var ErrQueueClosed = &PoolError{"serial queue closed"}

// PoolError provides a simple typed error for scheduler operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
