package boundary

import "fmt"

// ProjectionError reports a coordinate that cannot be transformed between
// geographic and planar space. It aborts the batch: the input data is wrong.
type ProjectionError struct {
	X, Y   float64
	Reason string
	Err    error
}

func (e *ProjectionError) Error() string {
	msg := fmt.Sprintf("boundary: cannot project (%g, %g): %s", e.X, e.Y, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProjectionError) Unwrap() error {
	return e.Err
}
