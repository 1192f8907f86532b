package errors

import "fmt"

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrStorage      = fmt.Errorf("storage error")
	ErrTrimFailure  = fmt.Errorf("trim failure")
	ErrSinkClosed   = fmt.Errorf("sink closed")
	ErrSinkLagging  = fmt.Errorf("sink lagging")
	ErrUnauthorized = fmt.Errorf("unauthorized")
)
