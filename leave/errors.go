package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// PersistError reports a failed write-back of a batch run. It matches
// generic.ErrWriteFailed with errors.Is and unwraps to the store's error.
type PersistError struct {
	Kind    RunKind
	Pending int // employees whose new balances were not written
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: persist %d leave balance updates: %v", e.Kind, e.Pending, e.Err)
}

func (e *PersistError) Unwrap() []error {
	return []error{generic.ErrWriteFailed, e.Err}
}
