package queue

import "errors"

// ErrClosed is returned by Do after the Queue has been closed.
var ErrClosed = errors.New("queue closed")
