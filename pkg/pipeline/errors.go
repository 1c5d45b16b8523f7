package pipeline

import (
	"errors"
	"fmt"

	"github.com/nexus-research/nexus/pkg/models"
)

// StageError is a stage failure carried up to the worker. Kind drives the
// durable error category on the task row.
type StageError struct {
	Stage models.Stage
	Kind  models.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AsStageError unwraps err to its StageError, if any.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
