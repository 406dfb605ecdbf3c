package memory

import "fmt"

// RecallError reports a failed recall from one partition.
type RecallError struct {
	Partition Partition
	Err       error
}

func (e *RecallError) Error() string {
	return fmt.Sprintf("recall %s: %v", e.Partition, e.Err)
}

func (e *RecallError) Unwrap() error { return e.Err }

// WriteError reports a failed write to one partition.
type WriteError struct {
	Partition Partition
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Partition, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from the memory API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("memory API error: %d %s", e.Status, e.Body)
}

func (e *APIError) HTTPStatus() int { return e.Status }
