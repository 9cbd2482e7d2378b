package resource

import "fmt"

// ErrMemoryLimit is returned when a single reservation can never fit.
type ErrMemoryLimit struct {
	Requested int64
	Limit     int64
}

func (e *ErrMemoryLimit) Error() string {
	return fmt.Sprintf("resource: reservation of %d bytes exceeds memory limit of %d bytes", e.Requested, e.Limit)
}
