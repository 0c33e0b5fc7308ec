package errs

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// New builds a plain error with "msg, k=v" formatting and a stack trace.
func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

// ErrorWrapper prefixes an underlying error with context while keeping it unwrappable.
type ErrorWrapper struct {
	Err error
	Msg string
}

func NewErrorWrapper(err error, msg string) *ErrorWrapper {
	return &ErrorWrapper{Err: err, Msg: msg}
}

func (w *ErrorWrapper) Error() string {
	if w.Msg == "" {
		return w.Err.Error()
	}
	return w.Msg + ": " + w.Err.Error()
}

func (w *ErrorWrapper) Unwrap() error { return w.Err }

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
