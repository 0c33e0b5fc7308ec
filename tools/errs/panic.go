package errs

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrPanic turns a recovered value into an internal CodeError carrying a stack.
func ErrPanic(r any) error { return ErrPanicIn("", r) }

// ErrPanicIn is ErrPanic tagged with the task that panicked.
func ErrPanicIn(task string, r any) error {
	if r == nil {
		return nil
	}
	detail := fmt.Sprint(r)
	if task != "" {
		detail = task + ": " + detail
	}
	return pkgerrors.WithStack(&CodeError{Code: ServerInternalError, Msg: "panic error", Detail: detail})
}
