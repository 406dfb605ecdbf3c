package subsidy

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input rejected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError is a non-2xx answer from the J-Grants API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("J-Grants API error: %d %s", e.Status, e.Message)
}

func (e *UpstreamError) HTTPStatus() int { return e.Status }

var ErrNotFound = errors.New("subsidy not found")
