package chat

import "fmt"

// BadRequestError is an inbound chat request that cannot start a turn.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad chat request: %s", e.Reason)
}
